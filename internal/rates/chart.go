package rates

import (
	"io"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

	"ratewatch/internal/domain"
	"ratewatch/pkg/errors"
)

// RenderChart draws a PNG bar chart of the snapshot's conversion rates into w.
// Bars are sorted ascending by rate; equal rates keep canonical code order.
// Currency codes run along the x-axis with rotated labels.
func RenderChart(snap *domain.RateSnapshot, w io.Writer) error {
	if snap == nil || len(snap.ConversionRates) == 0 {
		return errors.ErrNoRates
	}

	codes := sortedCodes(snap.ConversionRates)
	sort.SliceStable(codes, func(i, j int) bool {
		return snap.ConversionRates[codes[i]] < snap.ConversionRates[codes[j]]
	})

	bars := make([]chart.Value, 0, len(codes))
	for _, code := range codes {
		bars = append(bars, chart.Value{
			Label: code,
			Value: snap.ConversionRates[code],
		})
	}

	graph := chart.BarChart{
		Title:    "Exchange Rates",
		Width:    1400,
		Height:   800,
		BarWidth: 10,
		XAxis: chart.Style{
			TextRotationDegrees: 45.0,
		},
		Bars: bars,
	}

	return graph.Render(chart.PNG, w)
}
