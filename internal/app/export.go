package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fx-rate-alerts/internal/rates"
	"fx-rate-alerts/internal/source"
)

// pairSeries is one pair's replayed observations with the alert kinds
// raised at each of them.
type pairSeries struct {
	pair         string
	observations []rates.Observation
	alerts       [][]string
}

// Export replays a file and renders its rates with alert markers as CSV
// and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	series, err := a.replaySeries(ctx, opts.Input, opts.Pair)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		a.Logger.Info().Msg("no observations found for export")
		return nil
	}

	for i := range series {
		total := len(series[i].observations)
		series[i] = downsampleSeries(series[i], opts.MaxPoints)
		a.Logger.Info().Str("pair", series[i].pair).Int("total", total).Int("exported", len(series[i].observations)).Msg("exporting observations")
	}

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, series); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		for _, s := range series {
			path := opts.PNGPath
			if len(series) > 1 {
				path = pairPath(opts.PNGPath, s.pair)
			}
			if err := writeSeriesPNG(path, s); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *App) replaySeries(ctx context.Context, input, pair string) ([]pairSeries, error) {
	eng, err := a.newEngine()
	if err != nil {
		return nil, err
	}

	in, err := source.Open(input)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	index := make(map[string]int)
	var series []pairSeries
	err = source.NewDecoder(in).Each(func(o rates.Observation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var kinds []string
		if err := eng.Observe(o, func(alert rates.Alert) { kinds = append(kinds, alert.Kind) }); err != nil {
			return err
		}
		if pair != "" && o.CurrencyPair != pair {
			return nil
		}
		i, ok := index[o.CurrencyPair]
		if !ok {
			i = len(series)
			index[o.CurrencyPair] = i
			series = append(series, pairSeries{pair: o.CurrencyPair})
		}
		series[i].observations = append(series[i].observations, o)
		series[i].alerts = append(series[i].alerts, kinds)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(series, func(i, j int) bool { return series[i].pair < series[j].pair })
	return series, nil
}

// downsampleSeries thins s to at most max points, always keeping the points
// that raised an alert.
func downsampleSeries(s pairSeries, max int) pairSeries {
	n := len(s.observations)
	if max <= 0 || n <= max {
		return s
	}

	keep := make([]bool, n)
	if max == 1 {
		keep[n-1] = true
	} else {
		step := float64(n-1) / float64(max-1)
		for i := 0; i < max; i++ {
			idx := int(math.Round(step * float64(i)))
			if idx >= n {
				idx = n - 1
			}
			keep[idx] = true
		}
	}
	for i, kinds := range s.alerts {
		if len(kinds) > 0 {
			keep[i] = true
		}
	}

	out := pairSeries{pair: s.pair}
	for i := range s.observations {
		if keep[i] {
			out.observations = append(out.observations, s.observations[i])
			out.alerts = append(out.alerts, s.alerts[i])
		}
	}
	return out
}

func writeSeriesCSV(path string, series []pairSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"timestamp", "time_utc", "currency_pair", "rate", "alerts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range series {
		for i, o := range s.observations {
			record := []string{
				rates.EpochSeconds(o.Timestamp).String(),
				o.Timestamp.UTC().Format(time.RFC3339Nano),
				o.CurrencyPair,
				formatRate(o.Rate),
				strings.Join(s.alerts[i], ";"),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path string, s pairSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(s.observations))
	y := make([]float64, len(s.observations))
	var alertX []time.Time
	var alertY []float64
	for i, o := range s.observations {
		x[i] = o.Timestamp
		y[i] = o.Rate
		if len(s.alerts[i]) > 0 {
			alertX = append(alertX, o.Timestamp)
			alertY = append(alertY, o.Rate)
		}
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.5f")
	}
	graph := chart.Chart{
		Title:  s.pair,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Rate (%s)", s.pair),
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Rate",
				XValues: x,
				YValues: y,
			},
		},
	}
	// go-chart needs at least two values per series
	if len(alertX) > 1 {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name: "Alerts",
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    5,
				DotColor:    drawing.ColorRed,
			},
			XValues: alertX,
			YValues: alertY,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// pairPath inserts the pair before the extension: chart.png -> chart_EURUSD.png.
func pairPath(path, pair string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + pair + ext
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatRate(rate float64) string {
	return decimal.NewFromFloat(rate).String()
}
