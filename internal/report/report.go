// Package report renders a decoded session as a standalone HTML page:
// a bar chart of per-label event counts and a timeline of when each event
// occurred within the capture.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/session"
)

// WriteHTML renders the session report to w.
func WriteHTML(w io.Writer, source string, sum *session.Summary) error {
	page := components.NewPage()
	page.AddCharts(countsChart(source, sum), timelineChart(sum))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render session report: %w", err)
	}
	return nil
}

// countsChart is a bar chart of event counts per label, commands first.
func countsChart(source string, sum *session.Summary) *charts.Bar {
	labels := sum.OrderedLabels()
	values := make([]opts.BarData, 0, len(labels))
	for _, label := range labels {
		values = append(values, opts.BarData{Value: sum.Counts[label]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Control Session", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Inferred events",
			Subtitle: fmt.Sprintf("%s: %d packets, %d control frames, %d invalid",
				source, sum.TotalPackets, sum.ControlFrames, sum.InvalidFrames),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("events", values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// timelineChart plots each event against capture time, one row per label.
// Movement events appear twice (start and end) so held sticks are visible
// as a span.
func timelineChart(sum *session.Summary) *charts.Scatter {
	rows := sum.OrderedLabels()
	rowIndex := make(map[string]int, len(rows))
	for i, label := range rows {
		rowIndex[label] = i
	}

	data := make([]opts.ScatterData, 0, len(sum.Events)*2)
	for _, e := range sum.Events {
		t0 := e.Start - sum.FirstTimestamp
		data = append(data, opts.ScatterData{Value: []interface{}{t0, rowIndex[e.Label]}})
		if e.Kind == infer.KindMovement {
			t1 := e.End - sum.FirstTimestamp
			data = append(data, opts.ScatterData{Value: []interface{}{t1, rowIndex[e.Label]}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Event timeline"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seconds into capture", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Max: float64(len(rows)), Name: "event"}),
	)
	scatter.AddSeries("events", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}
