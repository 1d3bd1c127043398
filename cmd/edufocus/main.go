package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/kamilpajak/edufocus/internal/config"
	"github.com/kamilpajak/edufocus/internal/focus"
	"github.com/kamilpajak/edufocus/internal/logger"
	"github.com/kamilpajak/edufocus/internal/picker"
	"github.com/kamilpajak/edufocus/internal/session"
	"github.com/kamilpajak/edufocus/internal/web"
	"github.com/kamilpajak/edufocus/pkg/periods"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verbose      bool
	jsonOutput   bool
	downloadPlot bool
	outputDir    string
	port         int
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:          "edufocus",
	Short:        "Classroom attention analysis client",
	Long:         `Uploads classroom EEG/behavioral CSV data to an EduFocus analysis server and reports periods of inattention.`,
	SilenceUsage: true,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file.csv]",
	Short: "Upload a CSV file and list inattentive periods",
	Long: `Upload a CSV file to the analysis server and list the periods of inattention it finds.

Without a file argument an interactive picker opens when running in a terminal.

Examples:
  edufocus analyze ./class-3b.csv
  edufocus analyze ./class-3b.csv --download --output-dir ./graphs
  edufocus analyze ./class-3b.csv --server http://192.168.1.4:8085 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web dashboard",
	RunE:  serve,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GlobalPath()
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edufocus %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default ~/.config/edufocus/config.yaml)")
	pf.String("server", "", "Analysis server base URL")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Write logs to a rotating file")
	_ = v.BindPFlag("config", pf.Lookup("config"))
	_ = v.BindPFlag("server.base_url", pf.Lookup("server"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.file", pf.Lookup("log-file"))

	analyzeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show each step of the exchange")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	analyzeCmd.Flags().BoolVarP(&downloadPlot, "download", "d", false, "Save the attention graph image")
	analyzeCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the saved graph (default from config)")

	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(analyzeCmd, serveCmd, configCmd, versionCmd)
}

func main() {
	if rootCmd.Execute() != nil {
		os.Exit(1)
	}
}

// setup loads configuration and the logger shared by all commands.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	l, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	return cfg, l, nil
}

func newClient(cfg *config.Config, l *logger.Logger) *focus.Client {
	return focus.NewClient(focus.Config{
		BaseURL:     cfg.Server.BaseURL,
		UploadPath:  cfg.Server.UploadPath,
		ProcessPath: cfg.Server.ProcessPath,
		Timeout:     cfg.Server.Timeout,
		Logger:      l.Logger,
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, l, err := setup()
	if err != nil {
		return err
	}
	defer l.Close()

	file, err := selectFile(args)
	if err != nil && !errors.Is(err, picker.ErrCanceled) {
		return err
	}

	dir := outputDir
	if dir == "" {
		dir = cfg.Download.Dir
	}

	return analyze(cmd.Context(), analyzeOptions{
		Client:    newClient(cfg, l),
		File:      file,
		Threshold: cfg.Display.ThresholdSeconds,
		Verbose:   verbose,
		JSON:      jsonOutput,
		Download:  downloadPlot,
		Dir:       dir,
		Filename:  cfg.Download.Filename,
		Spinner:   !verbose && !jsonOutput && isatty.IsTerminal(os.Stderr.Fd()),
	}, cmd.ErrOrStderr(), cmd.OutOrStdout())
}

// selectFile resolves the file argument, falling back to the interactive
// picker on a terminal. A dismissed picker yields picker.ErrCanceled.
func selectFile(args []string) (*focus.SelectedFile, error) {
	if len(args) == 1 {
		return picker.FromPath(args[0])
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return nil, picker.ErrCanceled
	}
	return picker.Interactive(".")
}

type analyzeOptions struct {
	Client    *focus.Client
	File      *focus.SelectedFile
	Threshold float64
	Verbose   bool
	JSON      bool
	Download  bool
	Dir       string
	Filename  string
	Spinner   bool
}

func analyze(ctx context.Context, opts analyzeOptions, stderr, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client := opts.Client
	if opts.Verbose {
		client = client.WithEmitter(focus.NewTextEmitter(stderr))
	}

	var observers []session.Option
	if opts.Spinner {
		observers = append(observers, session.WithObserver(spinnerObserver(stderr)))
	}

	sess := session.New(client, observers...)
	sess.Pick(opts.File)
	out := sess.Analyze(ctx)

	// Details were logged by the client; the user sees one message.
	if out.State == session.StateFailed {
		return errors.New(out.Message)
	}

	if opts.JSON {
		if err := json.NewEncoder(stdout).Encode(out.Result); err != nil {
			return err
		}
	} else {
		printResult(stderr, stdout, out.Result, opts.Threshold)
	}

	if opts.Download && out.Result.HasPlot() {
		path, err := client.DownloadPlot(ctx, out.Result.PlotURL, opts.Dir, opts.Filename)
		if err != nil {
			return errors.New(focus.UserMessage(err))
		}
		_, _ = color.New(color.FgGreen).Fprintf(stderr, "Image saved to %s\n", path)
	}
	return nil
}

func spinnerObserver(w io.Writer) session.Observer {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Analyzing..."
	return func(o session.Outcome) {
		if o.State == session.StateLoading {
			s.Start()
			return
		}
		s.Stop()
	}
}

func printResult(stderr, stdout io.Writer, r *focus.Result, threshold float64) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(stderr)
	_, _ = bold.Fprintf(stdout, "Periods of Inattention (≥ %s seconds)\n", formatSeconds(threshold))

	if len(r.Periods) == 0 {
		fmt.Fprintln(stdout, "No inattentive periods found.")
	}
	for _, p := range r.Periods {
		fmt.Fprintf(stdout, "  %s\n", p)
	}

	if len(r.Periods) > 0 {
		_, _ = dim.Fprintf(stderr, "  %d periods, %s seconds in total\n",
			len(r.Periods), formatSeconds(periods.TotalDuration(r.Periods)))
	}

	if r.HasPlot() {
		fmt.Fprintln(stdout)
		_, _ = bold.Fprintln(stdout, "Attention Graph")
		fmt.Fprintln(stdout, r.PlotURL)
	}
}

// formatSeconds prints whole numbers without a fractional part.
func formatSeconds(s float64) string {
	out := fmt.Sprintf("%.2f", s)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, l, err := setup()
	if err != nil {
		return err
	}
	defer l.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr: addr,
		Handler: web.NewHandler(web.Config{
			Client:           newClient(cfg, l),
			Logger:           l.Logger,
			ThresholdSeconds: cfg.Display.ThresholdSeconds,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	// Graceful shutdown on interrupt (Ctrl+C)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			l.Error("shutdown error", "err", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "Dashboard: http://localhost:%d (server %s)\n", port, cfg.Server.BaseURL)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
