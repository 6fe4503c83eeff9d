// Package clock resolves the configured time zone policy and formats
// timestamps consistently across the tracker.
package clock

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// TimestampLayout is ISO-8601 with second precision and an explicit offset.
	TimestampLayout = "2006-01-02T15:04:05-07:00"
	// BackupLayout is the suffix used in snapshot file names.
	BackupLayout = "20060102_150405"
)

type Settings struct {
	AutoDST          bool
	Timezone         string
	FixedOffsetHours float64
}

type Clock struct {
	settings Settings
	log      zerolog.Logger
	now      func() time.Time

	once sync.Once
	loc  *time.Location
}

func New(settings Settings, log zerolog.Logger) *Clock {
	return &Clock{settings: settings, log: log, now: time.Now}
}

// NewWithSource is New with a custom source of the current instant.
func NewWithSource(settings Settings, log zerolog.Logger, now func() time.Time) *Clock {
	c := New(settings, log)
	c.now = now
	return c
}

// Location returns the resolved zone. It is computed on first use and reused.
func (c *Clock) Location() *time.Location {
	c.once.Do(func() { c.loc = c.resolve() })
	return c.loc
}

func (c *Clock) resolve() *time.Location {
	if c.settings.AutoDST {
		loc, err := time.LoadLocation(c.settings.Timezone)
		if err != nil {
			c.log.Warn().Err(err).Str("timezone", c.settings.Timezone).Msg("unknown timezone, falling back to UTC")
			return time.UTC
		}
		return loc
	}
	offset := int(math.Round(c.settings.FixedOffsetHours * 3600))
	return time.FixedZone(fixedZoneName(offset), offset)
}

func fixedZoneName(offsetSeconds int) string {
	if offsetSeconds == 0 {
		return "UTC"
	}
	sign := '+'
	if offsetSeconds < 0 {
		sign = '-'
		offsetSeconds = -offsetSeconds
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offsetSeconds/3600, offsetSeconds%3600/60)
}

// Now returns the current instant in the configured zone, truncated to the second.
func (c *Clock) Now() time.Time {
	return c.In(c.now())
}

// In converts t to the configured zone at second precision.
func (c *Clock) In(t time.Time) time.Time {
	return t.In(c.Location()).Truncate(time.Second)
}

// Format renders t as ISO-8601 in the configured zone.
func (c *Clock) Format(t time.Time) string {
	return c.In(t).Format(TimestampLayout)
}

// BackupStamp renders t for snapshot file names.
func (c *Clock) BackupStamp(t time.Time) string {
	return t.In(c.Location()).Format(BackupLayout)
}

// ZoneName describes the zone for humans, e.g. "Europe/Kiev" or "UTC+02:00".
func (c *Clock) ZoneName() string {
	return c.Location().String()
}
