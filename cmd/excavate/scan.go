package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/excavate/internal/config"
	"github.com/nao1215/excavate/internal/database"
	"github.com/nao1215/excavate/internal/excavate"
	"github.com/nao1215/excavate/internal/log"
	"github.com/nao1215/excavate/internal/metrics"
	"github.com/nao1215/excavate/internal/pipeline"
	"github.com/nao1215/excavate/internal/protocol"
	"github.com/nao1215/excavate/internal/report"
	"github.com/nao1215/excavate/internal/scope"
	"github.com/nao1215/excavate/internal/spider"
	"github.com/nao1215/excavate/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target...]",
		Short: "Spider targets and extract events from every response",
		Long: `Scan fetches each target, extracts events from the response and follows
discovered links that are in scope and within the spider limits.

Targets are URLs, host names, IP addresses or CIDR networks. A target
without a scheme is fetched over http.

Examples:
  # Fetch a single page and report what it references
  excavate scan https://example.com

  # Follow links two hops deep, at most three directories deep
  excavate scan -D 2 -d 3 https://example.com

  # Scan a list of targets, each with its own spider state
  excavate scan --list targets.txt --isolate

  # Route requests through a local Tor daemon
  excavate scan --proxy 127.0.0.1:9050 http://exampleonion.onion

  # Store events for a later 'excavate compare' and write a JSON report
  excavate scan --save --json -o report.json https://example.com

Configuration file (.excavate.yaml) values are used unless a flag is given.
Run 'excavate init' to create a commented template.`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .excavate.yaml in current directory or XDG config directory)")
	cmd.Flags().StringP("list", "L", "",
		"Read targets from a file, one per line")

	// Spider flags
	cmd.Flags().IntP("distance", "D", config.DefaultWebSpiderDistance,
		"Link hops from a target that are still fetched")
	cmd.Flags().IntP("depth", "d", config.DefaultWebSpiderDepth,
		"Deepest URL path, in directories, that is fetched")
	cmd.Flags().Int("links-per-page", config.DefaultWebSpiderLinksPerPage,
		"Links followed from a single page")
	cmd.Flags().Int("report-distance", config.DefaultScopeReportDistance,
		"Highest scope distance at which fetched pages are reported as URL")
	cmd.Flags().Bool("speculate-promote", false,
		"Fetch speculated origin roots")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of pages to fetch per scan (0 = no limit)")
	cmd.Flags().Bool("isolate", false,
		"Scan every target with its own spider state")

	// Transport flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of concurrent fetches")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second (0 = no limit)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header")
	cmd.Flags().Bool("insecure", false,
		"Skip TLS certificate verification")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("embedded-tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Storage and metrics flags
	cmd.Flags().Bool("save", false,
		"Store events in the event database")
	cmd.Flags().String("db-dir", "",
		"Event database directory (default: XDG data directory)")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the scan")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.JSONLog)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cfg, cmd.OutOrStdout(), logger)
}

// newLogger creates the secure logger used by every command.
func newLogger(w io.Writer, verbose, jsonLog bool) *slog.Logger {
	if jsonLog {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// override copies the value of a flag into dst when the flag was set on the
// command line. Unset flags leave configuration file values in place.
func override[T any](flags *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// buildConfig creates a Config from the configuration file and cobra flags.
//
// If the user explicitly specified a config file path, a missing file is an
// error. Otherwise the defaults are used when no file is found.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if path := config.FindConfigFile(configPath); path != "" {
		cfg, err = config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	overrides := []error{
		override(flags, "distance", flags.GetInt, &cfg.WebSpiderDistance),
		override(flags, "depth", flags.GetInt, &cfg.WebSpiderDepth),
		override(flags, "links-per-page", flags.GetInt, &cfg.WebSpiderLinksPerPage),
		override(flags, "report-distance", flags.GetInt, &cfg.ScopeReportDistance),
		override(flags, "speculate-promote", flags.GetBool, &cfg.SpeculatePromote),
		override(flags, "max-pages", flags.GetInt, &cfg.MaxPages),
		override(flags, "isolate", flags.GetBool, &cfg.Isolate),
		override(flags, "concurrency", flags.GetInt, &cfg.Concurrency),
		override(flags, "timeout", flags.GetDuration, &cfg.Timeout),
		override(flags, "rate", flags.GetFloat64, &cfg.RequestsPerSecond),
		override(flags, "user-agent", flags.GetString, &cfg.UserAgent),
		override(flags, "insecure", flags.GetBool, &cfg.InsecureTLS),
		override(flags, "proxy", flags.GetString, &cfg.TorProxy),
		override(flags, "embedded-tor", flags.GetBool, &cfg.EmbeddedTor),
		override(flags, "tor-timeout", flags.GetDuration, &cfg.TorStartupTimeout),
		override(flags, "save", flags.GetBool, &cfg.SaveToDB),
		override(flags, "db-dir", flags.GetString, &cfg.DBDir),
		override(flags, "metrics-addr", flags.GetString, &cfg.MetricsAddr),
		override(flags, "verbose", flags.GetBool, &cfg.Verbose),
		override(flags, "json-log", flags.GetBool, &cfg.JSONLog),
		override(flags, "json", flags.GetBool, &cfg.JSONReport),
		override(flags, "markdown", flags.GetBool, &cfg.MarkdownReport),
		override(flags, "output", flags.GetString, &cfg.ReportFile),
	}
	if err := errors.Join(overrides...); err != nil {
		return nil, err
	}

	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	targets := args
	if listPath != "" {
		listed, err := readTargetsFile(listPath)
		if err != nil {
			return nil, err
		}
		targets = append(targets, listed...)
	}
	if len(targets) > 0 {
		cfg.Targets = targets
	}

	return cfg, nil
}

// readTargetsFile reads one target per line. Blank lines and lines starting
// with '#' are skipped.
func readTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided target list
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return targets, nil
}

// maxIsolatedScans is the number of targets scanned at once with --isolate.
const maxIsolatedScans = 4

// scanner holds what every scan of one invocation shares.
type scanner struct {
	cfg       *config.Config
	rules     []config.Rule
	metrics   *metrics.Metrics
	proxyAddr string
	store     *database.EventStore
	logger    *slog.Logger
}

// scanRun is one spider run over a group of targets.
type scanRun struct {
	targets []string
	memory  *excavate.MemorySink
	scanID  string
	loop    *pipeline.Loop
	started time.Time
}

// runScan executes the scan.
func runScan(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	rules, err := cfg.LoadRules()
	if err != nil {
		return err
	}

	s := &scanner{cfg: cfg, rules: rules, logger: logger}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.NewMetrics(reg)
		shutdown, err := serveMetrics(cfg.MetricsAddr, s.metrics.Handler(reg), logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	s.proxyAddr = cfg.TorProxy
	if cfg.EmbeddedTor {
		fmt.Fprintln(out, "Starting embedded Tor daemon...")
		fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		tor, err := transport.StartEmbeddedTor(ctx, cfg.TorStartupTimeout)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := tor.Close(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		if s.proxyAddr, err = tor.ProxyAddr(); err != nil {
			return err
		}
	}
	if s.proxyAddr != "" {
		if status := transport.CheckProxy(ctx, s.proxyAddr); status != transport.ProxyStatusOK {
			return fmt.Errorf("proxy check failed for %s: %w", s.proxyAddr, status.Err())
		}
		logger.Info("proxy connection verified", "address", s.proxyAddr)
	}

	if cfg.SaveToDB {
		s.store, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer s.store.Close()
		logger.Info("database opened", "path", s.store.Path())
	}

	writer, closeOutput, err := openReportWriter(cfg, out)
	if err != nil {
		return err
	}
	defer closeOutput()

	var reports []*report.Report
	if cfg.Isolate && len(cfg.Targets) > 1 {
		reports, err = s.runIsolated(ctx)
	} else {
		var rep *report.Report
		rep, err = s.runGroup(ctx, cfg.Targets)
		if rep != nil {
			reports = append(reports, rep)
		}
	}

	for _, rep := range reports {
		if _, werr := writer.Write(rep); werr != nil {
			return fmt.Errorf("failed to write report: %w", werr)
		}
	}
	return err
}

// runGroup scans targets with one shared spider state.
func (s *scanner) runGroup(ctx context.Context, targets []string) (*report.Report, error) {
	run, err := s.newRun(ctx, targets)
	if err != nil {
		return nil, err
	}
	summary, err := run.loop.Run(ctx, targets)
	rep := s.finish(ctx, run, summary)
	if errors.Is(err, pipeline.ErrNoSeeds) {
		return nil, err
	}
	return rep, err
}

// runIsolated scans every target with its own spider state.
func (s *scanner) runIsolated(ctx context.Context) ([]*report.Report, error) {
	var (
		mu   sync.Mutex
		runs = make(map[string]*scanRun)
	)
	bp := pipeline.NewBatchProcessor(
		func(target string) (*pipeline.Loop, error) {
			run, err := s.newRun(ctx, []string{target})
			if err != nil {
				return nil, err
			}
			mu.Lock()
			runs[target] = run
			mu.Unlock()
			return run.loop, nil
		},
		pipeline.WithConcurrency(min(len(s.cfg.Targets), maxIsolatedScans)),
		pipeline.WithBatchLogger(s.logger),
	)

	summaries, err := bp.ProcessBatch(ctx, s.cfg.Targets)

	var reports []*report.Report
	for i, target := range s.cfg.Targets {
		run, ok := runs[target]
		if !ok {
			continue
		}
		reports = append(reports, s.finish(ctx, run, summaries[i]))
	}
	return reports, err
}

// newRun builds the scope oracle, tracker, engine and loop of one run.
func (s *scanner) newRun(ctx context.Context, targets []string) (*scanRun, error) {
	cfg := s.cfg

	// Invalid targets are skipped by the loop as seeds.
	oracle, err := scope.NewTargetOracle(targets...)
	if err != nil {
		s.logger.Warn("ignoring invalid target", "error", err)
	}

	site := cfg.Defaults
	if len(targets) == 1 {
		site = cfg.GetSiteConfig(scope.TargetHost(targets[0]))
	}

	tracker := spider.NewTracker(oracle,
		spider.WithMaxDistance(cfg.WebSpiderDistance),
		spider.WithMaxDepth(cfg.WebSpiderDepth),
		spider.WithLinksPerPage(cfg.WebSpiderLinksPerPage),
		spider.WithScopeReportDistance(cfg.ScopeReportDistance),
		spider.WithSpeculatePromote(cfg.SpeculatePromote),
		spider.WithExtensionBlacklist(cfg.URLExtensionBlacklist),
		spider.WithIgnorePatterns(site.IgnorePatterns),
		spider.WithFollowPatterns(site.FollowPatterns),
		spider.WithLogger(s.logger),
	)

	run := &scanRun{
		targets: targets,
		memory:  excavate.NewMemorySink(),
		started: time.Now(),
	}
	var sink excavate.Sink = run.memory
	if s.store != nil {
		run.scanID, err = s.store.CreateScan(ctx, targets)
		if err != nil {
			return nil, err
		}
		sink = excavate.MultiSink{run.memory, s.store.Sink(run.scanID)}
	}

	engine, err := excavate.NewEngine(tracker, sink,
		excavate.WithLogger(s.logger),
		excavate.WithMetrics(s.metrics),
		excavate.WithClassifier(protocol.NewClassifier(protocol.WithSchemes(cfg.ValidSchemes))),
		excavate.WithHTTPXOnlyExtensions(cfg.URLExtensionHTTPXOnly),
	)
	if err != nil {
		return nil, err
	}
	for _, r := range s.rules {
		if err := engine.AddRule(r.Name, r.Source, nil); err != nil {
			return nil, fmt.Errorf("failed to add rule %s: %w", r.Name, err)
		}
	}

	fetcherOpts := []transport.FetcherOption{
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithMaxBodySize(cfg.MaxBodySize),
		transport.WithRequestsPerSecond(cfg.RequestsPerSecond),
		transport.WithInsecureTLS(cfg.InsecureTLS),
		transport.WithHeaders(site.Headers),
		transport.WithCookie(site.Cookie),
		transport.WithLogger(s.logger),
	}
	if s.proxyAddr != "" {
		fetcherOpts = append(fetcherOpts, transport.WithProxy(s.proxyAddr))
	}
	fetcher, err := transport.NewFetcher(fetcherOpts...)
	if err != nil {
		return nil, err
	}

	run.loop, err = pipeline.NewLoop(engine, fetcher,
		pipeline.WithLoopConcurrency(cfg.Concurrency),
		pipeline.WithMaxPages(cfg.MaxPages),
		pipeline.WithLoopLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// finish builds the report of a run and closes its stored scan.
func (s *scanner) finish(ctx context.Context, run *scanRun, summary pipeline.Summary) *report.Report {
	rep := report.NewReport(run.targets, run.memory.Events())
	rep.ScanID = run.scanID
	rep.Date = run.started.UTC()
	rep.Elapsed = summary.Elapsed
	rep.PagesFetched = summary.Fetched
	rep.PagesFailed = summary.Failed
	rep.Canceled = ctx.Err() != nil

	if s.store != nil && run.scanID != "" {
		// The scan is closed even when ctx was canceled.
		if err := s.store.FinishScan(context.WithoutCancel(ctx), run.scanID, summary); err != nil {
			s.logger.Error("failed to finish scan", "scan_id", run.scanID, "error", err)
		} else {
			s.logger.Info("scan saved to database", "scan_id", run.scanID, "events", len(rep.Events))
		}
	}
	return rep
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown function.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics address: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx) //nolint:errcheck // best effort on exit
	}, nil
}

// openReportWriter returns the writer for the requested format.
//
// With --output the chosen format goes to the file and a plain summary is
// still printed to out.
func openReportWriter(cfg *config.Config, out io.Writer) (report.Writer, func(), error) {
	if cfg.ReportFile == "" {
		return newFormatWriter(cfg, out), func() {}, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain sensitive information that should only be readable by the owner
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := report.NewMultiWriter(
		newFormatWriter(cfg, f),
		report.NewSimpleWriter(out),
	)
	return w, func() { _ = f.Close() }, nil //nolint:errcheck // write errors surface from Write
}

// newFormatWriter returns the writer of the requested report format.
func newFormatWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}
