// Package charts renders the category breakdown as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"budgetly/internal/aggregate"
	"budgetly/internal/cache"
	"budgetly/internal/core"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to chart")

type Kind string

const (
	KindPie Kind = "pie"
	KindBar Kind = "bar"
)

// ParseKind defaults an empty kind to the pie chart.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindPie:
		return KindPie, nil
	case KindBar:
		return KindBar, nil
	}
	return "", fmt.Errorf("unknown chart kind %q", s)
}

var palette = []drawing.Color{
	drawing.ColorFromHex("4ade80"),
	drawing.ColorFromHex("38bdf8"),
	drawing.ColorFromHex("fbbf24"),
	drawing.ColorFromHex("f87171"),
	drawing.ColorFromHex("818cf8"),
	drawing.ColorFromHex("a78bfa"),
	drawing.ColorFromHex("f472b6"),
	drawing.ColorFromHex("78716c"),
}

var barColor = drawing.ColorFromHex("3b82f6")

// Renderer renders charts and keeps the results in an LRU cache.
type Renderer struct {
	cache *cache.LRUCache[[]byte]
}

// NewRenderer caches into c; a nil c disables caching.
func NewRenderer(c *cache.LRUCache[[]byte]) *Renderer {
	return &Renderer{cache: c}
}

// CacheKey identifies a chart for one session at one dashboard version.
func CacheKey(session string, version uint64, kind Kind) string {
	return fmt.Sprintf("%s:%d:%s", session, version, kind)
}

// Render returns the cached image under key or renders a fresh one.
func (r *Renderer) Render(key string, kind Kind, shares []aggregate.Share) ([]byte, error) {
	if r.cache != nil && key != "" {
		if png, ok := r.cache.Get(key); ok {
			return png, nil
		}
	}

	var (
		png []byte
		err error
	)
	switch kind {
	case KindBar:
		png, err = Bar(shares)
	default:
		png, err = Pie(shares)
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil && key != "" {
		r.cache.Set(key, png)
	}
	return png, nil
}

// Forget drops every cached chart of a session.
func (r *Renderer) Forget(session string) {
	if r.cache != nil {
		r.cache.DeletePrefix(session + ":")
	}
}

// plottable keeps the positive finite shares. A category whose total
// overflowed float64 cannot be drawn.
func plottable(shares []aggregate.Share) []aggregate.Share {
	out := make([]aggregate.Share, 0, len(shares))
	for _, s := range shares {
		if s.Amount > 0 && !math.IsInf(s.Amount, 1) {
			out = append(out, s)
		}
	}
	return out
}

// Pie renders the share of each category in the total.
func Pie(shares []aggregate.Share) ([]byte, error) {
	shares = plottable(shares)
	if len(shares) == 0 {
		return nil, ErrNoData
	}

	// Slices are drawn relative to the largest one so their sum stays finite.
	largest := 0.0
	for _, s := range shares {
		largest = math.Max(largest, s.Amount)
	}

	values := make([]chart.Value, 0, len(shares))
	for i, s := range shares {
		color := palette[i%len(palette)]
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%.1f%%)", s.Category, core.FormatAmount(s.Amount), s.Percent),
			Value: s.Amount / largest,
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: chart.ColorWhite,
				FontSize:    11,
				FontColor:   chart.ColorBlack,
			},
		})
	}

	pie := chart.PieChart{
		Width:  600,
		Height: 600,
		Values: values,
		Background: chart.Style{
			Padding:   chart.Box{Top: 30, Left: 30, Right: 30, Bottom: 30},
			FillColor: chart.ColorWhite,
		},
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render pie chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Bar renders one bar per category.
func Bar(shares []aggregate.Share) ([]byte, error) {
	shares = plottable(shares)
	if len(shares) == 0 {
		return nil, ErrNoData
	}

	maxAmount := 0.0
	bars := make([]chart.Value, 0, len(shares))
	for _, s := range shares {
		if s.Amount > maxAmount {
			maxAmount = s.Amount
		}
		bars = append(bars, chart.Value{
			Label: string(s.Category),
			Value: s.Amount,
			Style: chart.Style{
				FillColor:   barColor,
				StrokeColor: barColor,
			},
		})
	}

	top := maxAmount * 1.1
	if math.IsInf(top, 1) {
		top = math.MaxFloat64
	}

	graph := chart.BarChart{
		Title:    "Expenses by Category",
		Width:    800,
		Height:   420,
		BarWidth: 40,
		Background: chart.Style{
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					if f >= 1e12 {
						return fmt.Sprintf("%.2g", f)
					}
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}
