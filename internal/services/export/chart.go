package export

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/finvault/ledgersync/internal/models"
)

// RenderBalanceChart renders the daily portfolio total as a PNG time series.
// Days may arrive in any order; the series is plotted oldest to newest.
func RenderBalanceChart(days []models.PortfolioDay) ([]byte, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("no data points to chart")
	}

	sorted := make([]models.PortfolioDay, len(days))
	copy(sorted, days)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	series := chart.TimeSeries{
		Name: "Portfolio Total",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2E86AB"),
			StrokeWidth: 2.0,
			FillColor:   drawing.ColorFromHex("2E86AB").WithAlpha(40),
		},
	}
	for _, day := range sorted {
		series.XValues = append(series.XValues, day.Date)
		series.YValues = append(series.YValues, day.PortfolioTotal.InexactFloat64())
	}

	graph := chart.Chart{
		Title:  "Portfolio Balance History",
		Width:  1200,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Balance",
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}
