// Package export writes the response log to the Excel report file.
package export

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"reply-tracker/internal/storage"
)

const (
	SheetName   = "Response Data"
	cellTime    = "2006-01-02 15:04:05"
	maxColWidth = 50
)

var Columns = []string{
	"Response Time",
	"Responder Username",
	"Responder ID",
	"Response Message",
	"Original Message Time",
	"Original Sender Username",
	"Original Sender ID",
	"Original Message",
	"Response Delay (seconds)",
	"Response Delay (minutes)",
	"Response Delay (hours)",
	"Chat ID",
	"Original Message ID",
}

// Locker guards the report file against concurrent writers and backup copies.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

type Exporter struct {
	path string
	lock Locker
	log  zerolog.Logger
}

func New(path string, lock Locker, log zerolog.Logger) *Exporter {
	return &Exporter{path: path, lock: lock, log: log}
}

func (e *Exporter) Path() string { return e.path }

// Write renders events into a workbook and replaces the report file with it.
func (e *Exporter) Write(ctx context.Context, events storage.EventLog) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			e.log.Warn().Err(err).Msg("failed to close workbook")
		}
	}()
	if err := fill(f, events); err != nil {
		return err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}

	unlock, err := e.lock.Lock(ctx)
	if err != nil {
		return fmt.Errorf("lock report: %w", err)
	}
	defer unlock()
	if err := storage.WriteFileAtomic(e.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	e.log.Info().Int("responses", len(events)).Str("file", e.path).Msg("exported responses to Excel")
	return nil
}

func fill(f *excelize.File, events storage.EventLog) error {
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	widths := make([]int, len(Columns))
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
		widths[i] = utf8.RuneCountInString(c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, ev := range events {
		row := eventRow(ev)
		for j, v := range row {
			if n := utf8.RuneCountInString(displayValue(v)); n > widths[j] {
				widths[j] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	return format(f, widths, len(events))
}

func eventRow(ev storage.ResponseEvent) []interface{} {
	var senderName, senderID, question interface{}
	if ev.OriginalSenderName != nil {
		senderName = *ev.OriginalSenderName
	}
	if ev.OriginalSenderID != nil {
		senderID = *ev.OriginalSenderID
	}
	if ev.QuestionText != nil {
		question = *ev.QuestionText
	}
	return []interface{}{
		ev.ResponseTimestamp.Format(cellTime),
		ev.ResponderName,
		ev.ResponderID,
		ev.ResponseText,
		ev.QuestionTimestamp.Format(cellTime),
		senderName,
		senderID,
		question,
		round2(ev.ResponseDelaySeconds),
		round2(ev.ResponseDelaySeconds / 60),
		round2(ev.ResponseDelaySeconds / 3600),
		ev.ChatID,
		ev.OriginalMessageID,
	}
}

func format(f *excelize.File, widths []int, rows int) error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("cell style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return err
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(w+2, maxColWidth))); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}
	if rows > 0 {
		if err := f.SetCellStyle(SheetName, "A2", lastCol+strconv.Itoa(rows+1), cellStyle); err != nil {
			return fmt.Errorf("apply cell style: %w", err)
		}
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if err := f.AutoFilter(SheetName, fmt.Sprintf("A1:%s%d", lastCol, rows+1), nil); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}
	return nil
}

func displayValue(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
