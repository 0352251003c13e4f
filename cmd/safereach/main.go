package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/safereach/internal/config"
	"github.com/san-kum/safereach/internal/experiment"
	"github.com/san-kum/safereach/internal/export"
	"github.com/san-kum/safereach/internal/optim"
	"github.com/san-kum/safereach/internal/storage"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	verbose    int
	configFile string
	preset     string
	backend    string
	integrator string
	nSafe      int
	rCommit    int
	beta       float64
	seed       int64
	sweep      []float64
	workers    int
	noSave     bool
	plotFile   string
	outFile    string
	xAxis      int
	yAxis      int
	benchRuns  int
	betaGrid   []float64
	gainGrid   []float64
	lipGrid    []float64
	metricName string
)

var (
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// defaultPresets is used by reach when neither --preset nor --config is given.
var defaultPresets = map[string]string{
	"pendulum": "small",
	"cartpole": "rl_nsafe4",
	"linear":   "constant",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "safereach",
		Short:         "ellipsoidal reachability for learned dynamics under affine feedback",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".safereach", "data directory")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "log verbosity (-v info, -vv debug)")

	reachCmd := &cobra.Command{
		Use:   "reach [model]",
		Short: "propagate the start set over the safety horizon",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReach,
	}
	reachCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	reachCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	reachCmd.Flags().StringVar(&backend, "backend", "simulated", "model backend (simulated, gp)")
	reachCmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator of the simulated backend")
	reachCmd.Flags().IntVar(&nSafe, "n-safe", config.DefaultNSafe, "number of feedback laws in the safety horizon")
	reachCmd.Flags().IntVar(&rCommit, "r", config.DefaultR, "steps committed before replanning")
	reachCmd.Flags().Float64Var(&beta, "beta", config.DefaultBetaSafety, "confidence scaling of the predictive variance")
	reachCmd.Flags().Int64Var(&seed, "seed", 0, "random seed of the gp training data")
	reachCmd.Flags().Float64SliceVar(&sweep, "sweep", nil, "evaluate the feedback law scaled by each factor")
	reachCmd.Flags().IntVar(&workers, "workers", 0, "concurrent candidates for --sweep (0 = unlimited)")
	reachCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	reachCmd.Flags().StringVar(&plotFile, "plot", "", "render the tube to an image (png, svg, pdf)")
	reachCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for the plot x-axis")
	reachCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for the plot y-axis")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored tube",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVarP(&outFile, "out", "o", "", "image file (png, svg, pdf); terminal graph when empty")
	plotCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	plotCmd.Flags().IntVar(&yAxis, "y-axis", 1, "state index for y-axis")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a run with its sets to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file; stdout when empty")

	benchCmd := &cobra.Command{
		Use:   "bench [model]",
		Short: "benchmark propagation for every preset of a model",
		Args:  cobra.ExactArgs(1),
		RunE:  benchModel,
	}
	benchCmd.Flags().IntVar(&benchRuns, "runs", 20, "propagations per preset")

	tuneCmd := &cobra.Command{
		Use:   "tune [model]",
		Short: "grid search for the tightest committed-safe tube",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneModel,
	}
	tuneCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	tuneCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	tuneCmd.Flags().Float64SliceVar(&betaGrid, "beta-grid", nil, "beta_safety values")
	tuneCmd.Flags().Float64SliceVar(&gainGrid, "gain-grid", []float64{0.5, 0.75, 1, 1.25, 1.5}, "controller gain scales")
	tuneCmd.Flags().Float64SliceVar(&lipGrid, "lipschitz-grid", nil, "lipschitz constant scales")
	tuneCmd.Flags().StringVar(&metricName, "metric", "max_semi_axis", "metric to minimize")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, m := range config.ListModels() {
					fmt.Printf("%s: %s\n", m, strings.Join(config.ListPresets(m), ", "))
				}
				return nil
			}
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models",
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range experiment.NewRegistry().ListModels() {
				fmt.Println(m)
			}
		},
	}

	rootCmd.AddCommand(reachCmd, listCmd, showCmd, plotCmd, exportJSONCmd, benchCmd, tuneCmd, presetsCmd, modelsCmd)
	return rootCmd
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

// loadConfig resolves the run configuration: a config file, else a preset,
// else the model's default preset. Flags set on the command line win.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if len(args) > 0 && args[0] != loaded.Model {
			return nil, fmt.Errorf("config %s is for model %s, not %s", configFile, loaded.Model, args[0])
		}
		cfg = loaded
	default:
		model := "pendulum"
		if len(args) > 0 {
			model = args[0]
		}
		name := preset
		if name == "" {
			name = defaultPresets[model]
		}
		cfg = config.GetPreset(model, name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s/%s (available: %v)", model, name, config.ListPresets(model))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("n-safe") {
		cfg.NSafe = nSafe
	}
	if flags.Changed("r") {
		cfg.R = rCommit
	}
	if flags.Changed("beta") {
		cfg.BetaSafety = beta
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	return cfg, nil
}

func runReach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	exp := experiment.New(cfg, experiment.WithLogger(logger))
	if err := exp.Setup(); err != nil {
		return err
	}

	if len(sweep) > 0 {
		return runSweep(cmd.Context(), exp, cfg)
	}

	fmt.Println(dim.Render(fmt.Sprintf("propagating %s (%s) over %d steps...", cfg.Model, cfg.Backend, cfg.NSafe)))
	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(result)

	if plotFile != "" {
		err := export.SaveTube(plotFile, result.Tube, plotOptions(cfg.Model, cfg.SafeBox.Lower, cfg.SafeBox.Upper))
		if err != nil {
			return fmt.Errorf("plot: %w", err)
		}
		fmt.Printf("%s %s\n", dim.Render("plot:"), plotFile)
	}

	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.MetadataFor(result), result.Tube)
	if err != nil {
		return err
	}
	logger.Info("run stored", "id", runID, "dir", dataDir)
	fmt.Printf("%s %s\n", dim.Render("run id:"), cyan.Render(runID))
	return nil
}

func printSummary(res *experiment.Result) {
	tube := res.Tube
	final := tube.Final()

	fmt.Printf("%s %v\n", dim.Render("completed in"), res.Duration)
	fmt.Printf("%s %s\n", dim.Render("final center:"), white.Render(fmt.Sprintf("%.4g", final.CenterSlice())))

	switch {
	case len(res.Config.SafeBox.Lower) == 0:
		fmt.Println(dim.Render("safety: no safe box configured"))
	case res.FirstViolation < 0:
		fmt.Println(green.Render("safety: every step inside the safe box"))
	case res.CommittedSafe:
		fmt.Println(green.Render(fmt.Sprintf("safety: committed steps safe, step %d leaves the safe box", res.FirstViolation)))
	default:
		fmt.Println(red.Render(fmt.Sprintf("safety: step %d leaves the safe box", res.FirstViolation)))
	}

	fmt.Println("\nmetrics:")
	for _, name := range slices.Sorted(maps.Keys(tube.Metrics)) {
		fmt.Printf("  %s %s\n", dim.Render(name+":"), white.Render(fmt.Sprintf("%.6g", tube.Metrics[name])))
	}

	series := export.SemiAxisSeries(tube)
	if len(series) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption("max semi-axis per step"),
		))
	}
}

func runSweep(ctx context.Context, exp *experiment.Experiment, cfg *config.Config) error {
	results, err := exp.Sweep(ctx, sweep, workers)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCALE\tMAX_SEMI_AXIS\tLOG_VOLUME\tFIRST_VIOLATION\tCOMMITTED_SAFE")
	for i, res := range results {
		fmt.Fprintf(w, "%.3g\t%.4g\t%.4g\t%d\t%t\n",
			sweep[i],
			res.Tube.Metrics["max_semi_axis"],
			res.Tube.Metrics["log_volume"],
			res.FirstViolation,
			res.CommittedSafe,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(results) > 0 {
		fmt.Printf("\n%s %v\n", dim.Render("sweep time:"), results[0].Duration)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tBACKEND\tCTRL\tSTEPS\tC_SAFETY\tSAFE")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%.3g\t%t\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Backend,
			run.Controller,
			run.Horizon,
			run.CSafety,
			run.CommittedSafe,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tube, err := st.LoadTube(runID)
	if err != nil {
		return err
	}

	if outFile != "" {
		var lb, ub []float64
		if meta.Config != nil {
			lb, ub = meta.Config.SafeBox.Lower, meta.Config.SafeBox.Upper
		}
		if err := export.SaveTube(outFile, tube, plotOptions(meta.Model, lb, ub)); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("steps: %d\n\n", tube.Horizon())

	labels := export.StateLabels(meta.Model)
	n := tube.Start.Dim()
	for i := 0; i < n && i < 6; i++ {
		data := make([]float64, 0, tube.Horizon()+1)
		data = append(data, tube.Start.Center.AtVec(i))
		for _, e := range tube.Steps {
			data = append(data, e.Center.AtVec(i))
		}
		caption := fmt.Sprintf("center x%d per step", i)
		if i < len(labels) {
			caption = "center " + labels[i]
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption(caption),
		))
		fmt.Println()
	}

	fmt.Println(asciigraph.Plot(export.SemiAxisSeries(tube),
		asciigraph.Height(8),
		asciigraph.Width(60),
		asciigraph.Caption("max semi-axis per step"),
	))
	return nil
}

func plotOptions(model string, lb, ub []float64) export.PlotOptions {
	return export.PlotOptions{
		Title:  fmt.Sprintf("%s reachable sets", model),
		XAxis:  xAxis,
		YAxis:  yAxis,
		Labels: export.StateLabels(model),
		Lower:  lb,
		Upper:  ub,
	}
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	tube, err := st.LoadTube(runID)
	if err != nil {
		return err
	}

	if outFile != "" {
		return storage.ExportJSONFile(outFile, meta, tube)
	}
	return storage.ExportJSON(os.Stdout, meta, tube)
}

func benchModel(cmd *cobra.Command, args []string) error {
	model := args[0]
	presets := config.ListPresets(model)
	if len(presets) == 0 {
		return fmt.Errorf("no presets for model: %s", model)
	}

	fmt.Printf("benchmarking %s\n\n", model)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tBACKEND\tSTEPS\tRUNS\tTIME/RUN\tSTEPS/SEC")

	for _, name := range presets {
		cfg := config.GetPreset(model, name)
		exp := experiment.New(cfg)
		if err := exp.Setup(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		start := time.Now()
		for i := 0; i < benchRuns; i++ {
			if _, err := exp.Run(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		elapsed := time.Since(start)

		perRun := elapsed / time.Duration(max(benchRuns, 1))
		stepsPerSec := float64(cfg.NSafe*benchRuns) / elapsed.Seconds()
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%v\t%.0f\n", name, cfg.Backend, cfg.NSafe, benchRuns, perRun, stepsPerSec)
	}

	return w.Flush()
}

func tuneModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	var names []string
	var ranges [][]float64
	for _, p := range []struct {
		name string
		grid []float64
	}{
		{"beta_safety", betaGrid},
		{"gain_scale", gainGrid},
		{"lipschitz_scale", lipGrid},
	} {
		if len(p.grid) > 0 {
			names = append(names, p.name)
			ranges = append(ranges, p.grid)
		}
	}

	search, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	start := time.Now()
	best, evaluated, err := search.Search(cmd.Context(), cfg, metricName, experiment.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}

	fmt.Printf("%s %d candidates in %v\n", dim.Render("evaluated"), evaluated, time.Since(start))
	fmt.Printf("%s %s = %s\n", dim.Render("best"), metricName, green.Render(fmt.Sprintf("%.6g", best.Value)))
	for _, name := range names {
		fmt.Printf("  %s %s\n", dim.Render(name+":"), white.Render(fmt.Sprintf("%g", best.Params[name])))
	}
	return nil
}
