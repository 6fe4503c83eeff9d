// Package analytics aggregates persisted response events for the stats and
// chart commands.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"reply-tracker/internal/storage"
)

// Summary is the aggregate shown by /stats.
type Summary struct {
	TotalResponses      int
	AverageDelaySeconds float64
	ResponsesToday      int
	ActiveWorkers       int
}

// Summarize aggregates events. "Today" is the calendar day of now in now's
// location.
func Summarize(events storage.EventLog, now time.Time) Summary {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	s := Summary{TotalResponses: len(events)}
	if len(events) == 0 {
		return s
	}
	workers := make(map[int64]bool)
	var sum float64
	for _, ev := range events {
		sum += ev.ResponseDelaySeconds
		workers[ev.ResponderID] = true
		ts := ev.ResponseTimestamp.In(now.Location())
		if !ts.Before(startOfDay) && ts.Before(endOfDay) {
			s.ResponsesToday++
		}
	}
	s.AverageDelaySeconds = sum / float64(len(events))
	s.ActiveWorkers = len(workers)
	return s
}

// FilterResponder keeps the events answered by id.
func FilterResponder(events storage.EventLog, id int64) storage.EventLog {
	var out storage.EventLog
	for _, ev := range events {
		if ev.ResponderID == id {
			out = append(out, ev)
		}
	}
	return out
}

type WorkerAverage struct {
	ResponderID         int64
	Name                string
	Responses           int
	AverageDelaySeconds float64
}

// WorkerAverages returns one entry per responder ordered by ID. The name comes
// from the responder's first recorded event.
func WorkerAverages(events storage.EventLog) []WorkerAverage {
	byID := make(map[int64]*WorkerAverage)
	sums := make(map[int64]float64)
	for _, ev := range events {
		w, ok := byID[ev.ResponderID]
		if !ok {
			w = &WorkerAverage{ResponderID: ev.ResponderID, Name: ev.ResponderName}
			byID[ev.ResponderID] = w
		}
		w.Responses++
		sums[ev.ResponderID] += ev.ResponseDelaySeconds
	}
	out := make([]WorkerAverage, 0, len(byID))
	for id, w := range byID {
		w.AverageDelaySeconds = sums[id] / float64(w.Responses)
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResponderID < out[j].ResponderID })
	return out
}

type DayAverage struct {
	Date                string
	Responses           int
	AverageDelaySeconds float64
}

// DailyAverages returns the last days calendar days ending with now's day,
// oldest first. Days without responses have a zero average.
func DailyAverages(events storage.EventLog, now time.Time, days int) []DayAverage {
	if days <= 0 {
		return nil
	}
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -(days - 1))

	out := make([]DayAverage, days)
	sums := make([]float64, days)
	for i := range out {
		out[i].Date = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	for _, ev := range events {
		ts := ev.ResponseTimestamp.In(loc)
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)
		if day.Before(start) || day.After(today) {
			continue
		}
		idx := int(day.Sub(start).Hours()+12) / 24
		if idx < 0 || idx >= days {
			continue
		}
		out[idx].Responses++
		sums[idx] += ev.ResponseDelaySeconds
	}
	for i := range out {
		if out[i].Responses > 0 {
			out[i].AverageDelaySeconds = sums[i] / float64(out[i].Responses)
		}
	}
	return out
}

// FormatDelay renders a duration in seconds as seconds, minutes or hours.
func FormatDelay(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}
