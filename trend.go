package pricewatch

import (
	"fmt"
	"strings"
)

// TrendChart is the view state of one rendered price trend.
//
// A TrendChart is built fresh for every render by [NewTrendChart] and never
// updated in place; rendering a new selection replaces the previous value.
type TrendChart struct {
	// Title is "{name} - {model}".
	Title string `json:"title"`

	// Labels are the x-axis dates, in backend order.
	Labels []string `json:"labels"`

	// Prices are the y-axis values, aligned with Labels.
	Prices []int64 `json:"prices"`

	// Link is the product's source page, empty if unknown.
	Link string `json:"link"`
}

// NewTrendChart builds the chart for a product's price trend.
//
// Returns [ErrNoPriceData] if the trend has no data points.
func NewTrendChart(name, model string, trend PriceTrend) (TrendChart, error) {
	if len(trend.Prices) == 0 {
		return TrendChart{}, fmt.Errorf("%s - %s: %w", name, model, ErrNoPriceData)
	}

	chart := TrendChart{
		Title:  name + " - " + model,
		Labels: make([]string, len(trend.Prices)),
		Prices: make([]int64, len(trend.Prices)),
		Link:   trend.URL,
	}
	for i, p := range trend.Prices {
		chart.Labels[i] = p.Date
		chart.Prices[i] = p.Price
	}
	return chart, nil
}

// Range returns the lowest and highest price of the chart.
func (c TrendChart) Range() (low, high int64) {
	for i, p := range c.Prices {
		if i == 0 || p < low {
			low = p
		}
		if i == 0 || p > high {
			high = p
		}
	}
	return low, high
}

// sparkBlocks are the glyphs used by [TrendChart.Sparkline], lowest first.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the prices as a one-line block chart for terminals.
func (c TrendChart) Sparkline() string {
	if len(c.Prices) == 0 {
		return ""
	}

	low, high := c.Range()
	var b strings.Builder
	for _, p := range c.Prices {
		idx := 0
		if high > low {
			idx = int((p - low) * int64(len(sparkBlocks)-1) / (high - low))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
