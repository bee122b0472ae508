package summary

import (
	"errors"
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
)

// ErrEmptyChart is returned when there is nothing to draw.
var ErrEmptyChart = errors.New("summary: chart has no buckets")

// Unit is the axis unit for metric.
func Unit(metric Metric) string {
	if metric == MetricLatency {
		return "ms"
	}
	return "Mbps"
}

// RenderPNG draws data as a bar chart, one bar per bucket.
func RenderPNG(w io.Writer, data ChartData, metric Metric, width, height int) error {
	if len(data.Values) == 0 {
		return ErrEmptyChart
	}
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 360
	}
	bars := make([]chart.Value, 0, len(data.Values))
	for i, v := range data.Values {
		bars = append(bars, chart.Value{Label: data.Labels[i], Value: v})
	}
	bc := chart.BarChart{
		Title:      fmt.Sprintf("%s (%s)", data.Title, Unit(metric)),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		Width:      width,
		Height:     height,
		BarWidth:   max(8, min(60, width/(2*len(bars)+1))),
		YAxis:      chart.YAxis{Name: Unit(metric)},
		Bars:       bars,
	}
	return bc.Render(chart.PNG, w)
}
