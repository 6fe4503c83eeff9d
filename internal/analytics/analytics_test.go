package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"reply-tracker/internal/storage"
)

var kyiv = time.FixedZone("UTC+03:00", 3*3600)

func event(id int64, name string, at time.Time, delay float64) storage.ResponseEvent {
	return storage.ResponseEvent{
		ResponderID:          id,
		ResponderName:        name,
		ResponseTimestamp:    at,
		QuestionTimestamp:    at.Add(-time.Duration(delay) * time.Second),
		ResponseDelaySeconds: delay,
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, kyiv)
	events := storage.EventLog{
		event(1, "alice", now.Add(-time.Hour), 5),
		event(1, "alice", now.Add(-30*time.Hour), 120),
		// 23:30 UTC the previous day is already today in UTC+3
		event(2, "bob", time.Date(2024, 1, 14, 23, 30, 0, 0, time.UTC), 10),
	}

	s := Summarize(events, now)
	if s.TotalResponses != 3 {
		t.Errorf("total = %d", s.TotalResponses)
	}
	if math.Abs(s.AverageDelaySeconds-45) > 1e-9 {
		t.Errorf("average = %v", s.AverageDelaySeconds)
	}
	if s.ResponsesToday != 2 {
		t.Errorf("today = %d", s.ResponsesToday)
	}
	if s.ActiveWorkers != 2 {
		t.Errorf("workers = %d", s.ActiveWorkers)
	}

	if empty := Summarize(nil, now); empty.TotalResponses != 0 || empty.AverageDelaySeconds != 0 {
		t.Errorf("empty summary: %+v", empty)
	}
}

func TestWorkerAverages(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, kyiv)
	events := storage.EventLog{
		event(7, "zed", now, 30),
		event(1, "alice", now, 5),
		event(1, "alice_renamed", now, 120),
	}
	got := WorkerAverages(events)
	if len(got) != 2 {
		t.Fatalf("want 2 workers, got %d", len(got))
	}
	if got[0].ResponderID != 1 || got[0].Name != "alice" || got[0].Responses != 2 {
		t.Errorf("first worker: %+v", got[0])
	}
	if got[0].AverageDelaySeconds != 62.5 {
		t.Errorf("alice average = %v, want 62.5", got[0].AverageDelaySeconds)
	}
	if got[1].ResponderID != 7 || got[1].AverageDelaySeconds != 30 {
		t.Errorf("second worker: %+v", got[1])
	}

	mine := FilterResponder(events, 1)
	if len(mine) != 2 {
		t.Errorf("filter: %+v", mine)
	}
}

func TestDailyAverages(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, kyiv)
	events := storage.EventLog{
		event(1, "a", now.Add(-time.Hour), 60),
		event(1, "a", now.Add(-2*time.Hour), 120),
		event(1, "a", now.AddDate(0, 0, -6), 30),
		// outside the window
		event(1, "a", now.AddDate(0, 0, -7), 999),
	}
	days := DailyAverages(events, now, 7)
	if len(days) != 7 {
		t.Fatalf("want 7 days, got %d", len(days))
	}
	if days[0].Date != "2024-01-09" || days[6].Date != "2024-01-15" {
		t.Fatalf("window: %s..%s", days[0].Date, days[6].Date)
	}
	if days[6].Responses != 2 || days[6].AverageDelaySeconds != 90 {
		t.Errorf("today: %+v", days[6])
	}
	if days[0].Responses != 1 || days[0].AverageDelaySeconds != 30 {
		t.Errorf("first day: %+v", days[0])
	}
	for _, d := range days[1:6] {
		if d.Responses != 0 || d.AverageDelaySeconds != 0 {
			t.Errorf("expected empty day: %+v", d)
		}
	}
}

func TestFormatDelay(t *testing.T) {
	cases := map[float64]string{
		5:    "5.0 seconds",
		59.9: "59.9 seconds",
		62.5: "1.0 minutes",
		90:   "1.5 minutes",
		3600: "1.0 hours",
		5400: "1.5 hours",
	}
	for in, want := range cases {
		if got := FormatDelay(in); got != want {
			t.Errorf("FormatDelay(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderWithoutData(t *testing.T) {
	if _, err := RenderWorkerChart(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("worker chart: %v", err)
	}
	if _, err := RenderDailyChart(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("daily chart: %v", err)
	}
}
