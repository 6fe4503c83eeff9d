package analytics

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrNoData = errors.New("no data to chart")

var (
	workerColor = drawing.ColorFromHex("87ceeb")
	dailyColor  = drawing.ColorFromHex("90ee90")
)

// RenderWorkerChart draws average response time per worker in minutes as a PNG.
func RenderWorkerChart(workers []WorkerAverage) ([]byte, error) {
	if len(workers) == 0 {
		return nil, ErrNoData
	}
	bars := make([]chart.Value, 0, len(workers))
	for _, w := range workers {
		label := w.Name
		if label == "" {
			label = fmt.Sprintf("%d", w.ResponderID)
		}
		bars = append(bars, chart.Value{Label: label, Value: w.AverageDelaySeconds / 60})
	}
	return renderBars("Average Response Time by Worker (minutes)", bars, workerColor, 1200, 600)
}

// RenderDailyChart draws the daily averages in minutes as a PNG.
func RenderDailyChart(days []DayAverage) ([]byte, error) {
	if len(days) == 0 {
		return nil, ErrNoData
	}
	bars := make([]chart.Value, 0, len(days))
	for _, d := range days {
		bars = append(bars, chart.Value{Label: d.Date, Value: d.AverageDelaySeconds / 60})
	}
	return renderBars(fmt.Sprintf("Your Average Response Time (Last %d Days, minutes)", len(days)), bars, dailyColor, 800, 400)
}

func renderBars(title string, bars []chart.Value, color drawing.Color, width, height int) ([]byte, error) {
	maxValue := 0.0
	for i := range bars {
		bars[i].Style = chart.Style{FillColor: color, StrokeColor: color}
		if bars[i].Value > maxValue {
			maxValue = bars[i].Value
		}
	}
	top := maxValue * 1.1
	if top == 0 {
		// an all-zero range cannot be drawn
		top = 1
	}

	graph := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      width,
		Height:     height,
		BarWidth:   40,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
