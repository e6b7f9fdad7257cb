package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"etaanalyzer/internal/config"
	"etaanalyzer/internal/files"
	"etaanalyzer/internal/infrastructure"
	"etaanalyzer/internal/operations"
	"etaanalyzer/internal/services"
	"etaanalyzer/internal/validation"
	"etaanalyzer/pkg/contracts"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// options holds the parsed command line
type options struct {
	sources           []string
	identifier        string
	inputEncoding     string
	outputEncoding    string
	outputDir         string
	writeLFHFComputed bool
	headerPolicy      string
	sequencePolicy    string
	categories        string
	noSummary         bool
	noWorkbook        bool
	jobs              int
	version           bool
	set               map[string]bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// parseArgs parses flags and positional sources. Flags may appear before,
// between or after sources.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("processor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: processor [flags] source [source...]\n\n")
		fmt.Fprintf(stderr, "A source is an ETA CSV file, a directory of CSV files or a glob.\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.identifier, "i", "", "run identifier (default: local timestamp YYYYMMDDhhmmss)")
	fs.StringVar(&opts.identifier, "identifier", "", "run identifier (default: local timestamp YYYYMMDDhhmmss)")
	fs.StringVar(&opts.inputEncoding, "e", "", "input encoding: shift_jis or utf_8")
	fs.StringVar(&opts.inputEncoding, "input-encoding", "", "input encoding: shift_jis or utf_8")
	fs.StringVar(&opts.outputDir, "d", "", "output directory (default: csvout)")
	fs.StringVar(&opts.outputDir, "output-dir", "", "output directory (default: csvout)")
	fs.StringVar(&opts.outputEncoding, "E", "", "output encoding: shift_jis or utf_8")
	fs.StringVar(&opts.outputEncoding, "output-encoding", "", "output encoding: shift_jis or utf_8")
	fs.BoolVar(&opts.writeLFHFComputed, "write-lfhf-computed", false, "also write LFHFComputed rows to the interpolated file, each with its own value")
	fs.StringVar(&opts.headerPolicy, "header-policy", "", "header policy: strict or lenient")
	fs.StringVar(&opts.sequencePolicy, "sequence-policy", "", "sequence policy: strict or tolerant")
	fs.StringVar(&opts.categories, "categories", "", "YAML category dictionary replacing the built-in menu")
	fs.BoolVar(&opts.noSummary, "no-summary", false, "skip the category summary")
	fs.BoolVar(&opts.noWorkbook, "no-workbook", false, "skip the Excel workbook")
	fs.IntVar(&opts.jobs, "j", 0, "number of sources processed concurrently")
	fs.BoolVar(&opts.version, "version", false, "print version information and exit")

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		opts.sources = append(opts.sources, rest[0])
		rest = rest[1:]
	}

	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if len(opts.sources) == 0 && !opts.version {
		fs.Usage()
		return nil, errors.New("at least one source is required")
	}
	return opts, nil
}

// apply layers the flags that were given over the loaded configuration
func (o *options) apply(cfg *config.PipelineConfig) {
	if o.inputEncoding != "" {
		cfg.InputEncoding = o.inputEncoding
	}
	if o.outputEncoding != "" {
		cfg.OutputEncoding = o.outputEncoding
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.set["write-lfhf-computed"] {
		cfg.WriteLFHFComputed = o.writeLFHFComputed
	}
	if o.headerPolicy != "" {
		cfg.HeaderPolicy = o.headerPolicy
	}
	if o.sequencePolicy != "" {
		cfg.SequencePolicy = o.sequencePolicy
	}
	if o.categories != "" {
		cfg.CategoriesFile = o.categories
	}
	if o.noSummary {
		cfg.SkipSummary = true
	}
	if o.noWorkbook {
		cfg.SkipWorkbook = true
	}
	if o.jobs > 0 {
		cfg.BatchConcurrency = o.jobs
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return exitOK
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	opts.apply(&cfg.Pipeline)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid options: %v\n", err)
		return exitUsage
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownOTel, err := setupTelemetry(cfg.Telemetry, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	defer shutdownOTel()

	sources, err := files.NewDiscovery("").ExpandSources(opts.sources)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	fv := validation.NewFileValidator(logger)
	if err := fv.ValidateSources(sources); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	if err := fv.ValidateOutputDirectory(cfg.Pipeline.OutputDir); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	svc, err := services.NewPipelineService(cfg.Pipeline, nil, tracer, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	base := services.RunRequest{Identifier: opts.identifier}
	reqs := services.BatchRequests(base, sources, time.Now())
	for _, req := range reqs {
		if err := svc.Validate(req); err != nil {
			fmt.Fprintf(stderr, "error: %s: %v\n", req.Source, err)
			return exitUsage
		}
	}

	logger.InfoContext(ctx, "batch_started",
		slog.Int("sources", len(reqs)),
		slog.String("output_dir", cfg.Pipeline.OutputDir),
		slog.Int("concurrency", cfg.Pipeline.BatchConcurrency))

	results, err := svc.RunBatch(ctx, reqs, cfg.Pipeline.BatchConcurrency)
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Status == operations.OperationStatusCompleted {
			fmt.Fprintf(stdout, "Successfully saved: %s\n", res.Dir)
			continue
		}
		msg := string(res.Status)
		if res.Error != nil {
			msg = res.Error.Error()
		}
		fmt.Fprintf(stderr, "failed: %s: %s\n", res.Source, msg)
	}

	if err != nil {
		return exitFailure
	}
	return exitOK
}

// setupTelemetry initializes OpenTelemetry and returns the run tracer
func setupTelemetry(cfg config.TelemetryConfig, logger *slog.Logger) (*operations.OperationTracer, func(), error) {
	providers, err := infrastructure.InitializeOTel(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	return operations.NewOperationTracer(metrics), shutdown, nil
}
