package dashboard

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/shutterscope/shutterscope/internal/models"
)

// ErrNoChartData is returned when there is nothing to plot.
var ErrNoChartData = errors.New("no response codes to chart")

var barColor = drawing.ColorFromHex("2a9d8f")

// RenderChartPNG draws the status code distribution as a PNG bar chart,
// one bar per code with its height the percentage of results.
func RenderChartPNG(w io.Writer, s *models.Statistics, width, height int) error {
	bars := BarsFor(s)
	if len(bars) == 0 {
		return ErrNoChartData
	}
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 400
	}

	values := make([]chart.Value, 0, len(bars))
	for _, b := range bars {
		values = append(values, chart.Value{
			Value: b.Percentage,
			Label: strconv.Itoa(b.Code),
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		})
	}

	// Leave room for axis labels and keep bars no wider than their gaps.
	slot := (width - 120) / len(bars)
	barWidth := slot / 2
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 4 {
		barWidth = 4
	}

	bc := chart.BarChart{
		Title:      ChartTitle,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: slot - barWidth,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f%%", f)
				}
				return ""
			},
		},
		Bars: values,
	}

	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
