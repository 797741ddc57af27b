// Command session-report renders offline charts for a recorded session:
// an HTML page with the four axis traces, and a PNG of the calibration
// baseline band powers per channel.
package main

import (
	"bytes"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bci-flystick/flystick/internal/axis"
	"github.com/bci-flystick/flystick/internal/features"
	"github.com/bci-flystick/flystick/internal/store"
)

var (
	dbPath    = flag.String("db", "flystick.db", "Path to the session database")
	sessionID = flag.String("session", "", "Session ID to report on (default: most recent)")
	outDir    = flag.String("out", "report", "Output directory for report files")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := pickSession(st)
	if err != nil {
		return err
	}
	cmds, err := st.Commands(sess.ID)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return fmt.Errorf("session %s has no recorded commands", sess.ID)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	axesFile := filepath.Join(*outDir, "axes.html")
	if err := renderAxesHTML(axesFile, sess, cmds); err != nil {
		return err
	}
	log.Printf("wrote %s (%d commands)", axesFile, len(cmds))

	profile, err := st.LatestProfile()
	if errors.Is(err, sql.ErrNoRows) {
		log.Print("no calibration profile stored, skipping baseline chart")
		return nil
	}
	if err != nil {
		return err
	}
	baselineFile := filepath.Join(*outDir, "baseline.png")
	if err := renderBaselinePNG(baselineFile, profile.Baseline.Powers); err != nil {
		return err
	}
	log.Printf("wrote %s", baselineFile)
	return nil
}

func pickSession(st *store.Store) (store.Session, error) {
	if *sessionID == "" {
		sess, err := st.LatestSession()
		if errors.Is(err, sql.ErrNoRows) {
			return store.Session{}, fmt.Errorf("no sessions recorded in %s", *dbPath)
		}
		return sess, err
	}
	sessions, err := st.Sessions()
	if err != nil {
		return store.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == *sessionID {
			return s, nil
		}
	}
	return store.Session{}, fmt.Errorf("session %s not found", *sessionID)
}

// renderAxesHTML writes a line chart of all four axis traces against
// seconds since the first command. Neutral heartbeats show as gaps forced
// to zero, which is exactly what the receiver saw.
func renderAxesHTML(path string, sess store.Session, cmds []axis.Command) error {
	start := cmds[0].Timestamp
	x := make([]string, len(cmds))
	series := [axis.Count][]opts.LineData{}
	for i, cmd := range cmds {
		x[i] = fmt.Sprintf("%.1f", cmd.Timestamp.Sub(start).Seconds())
		for a := axis.Axis(0); a < axis.Count; a++ {
			series[a] = append(series[a], opts.LineData{Value: cmd.Value(a)})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Axes", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Axis commands",
			Subtitle: fmt.Sprintf("session=%s mode=%s commands=%d", sess.ID, sess.Mode, len(cmds)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "command", Min: -1, Max: 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for a := axis.Axis(0); a < axis.Count; a++ {
		line.AddSeries(a.String(), series[a], charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	}

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render axes chart: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// renderBaselinePNG writes grouped bars of the baseline mu/beta/alpha
// power per channel.
func renderBaselinePNG(path string, powers map[string]features.ChannelPowers) error {
	channels := make([]string, 0, len(powers))
	for name := range powers {
		channels = append(channels, name)
	}
	sort.Strings(channels)

	mu := make(plotter.Values, len(channels))
	beta := make(plotter.Values, len(channels))
	alpha := make(plotter.Values, len(channels))
	for i, name := range channels {
		p := powers[name]
		mu[i] = p.Mu
		beta[i] = p.Beta
		alpha[i] = p.Alpha
	}

	pl := plot.New()
	pl.Title.Text = "Baseline band power"
	pl.X.Label.Text = "Channel"
	pl.Y.Label.Text = "Power (µV²/Hz)"

	w := vg.Points(18)
	bands := []struct {
		name   string
		vals   plotter.Values
		offset vg.Length
		fill   color.Color
	}{
		{"mu", mu, -w, color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff}},
		{"beta", beta, 0, color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff}},
		{"alpha", alpha, w, color.RGBA{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff}},
	}
	for _, b := range bands {
		bars, err := plotter.NewBarChart(b.vals, w)
		if err != nil {
			return fmt.Errorf("baseline bars: %w", err)
		}
		bars.Offset = b.offset
		bars.Color = b.fill
		bars.LineStyle.Width = 0
		pl.Add(bars)
		pl.Legend.Add(b.name, bars)
	}
	pl.Legend.Top = true
	pl.NominalX(channels...)

	if err := pl.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save baseline plot: %w", err)
	}
	return nil
}
