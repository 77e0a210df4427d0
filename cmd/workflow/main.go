package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tailored-agentic-units/workflow/config"
	"github.com/tailored-agentic-units/workflow/observability"
	"github.com/tailored-agentic-units/workflow/registry"
	"github.com/tailored-agentic-units/workflow/server"
	"github.com/tailored-agentic-units/workflow/workflow"
)

const usage = `Usage: workflow [flags] <command> [args]

Commands:
  list           List loaded workflows
  dump <name>    Print a workflow as Graphviz DOT
  import         Store the -config workflows in -db or -dir
  serve          Serve the inspection procedures and /metrics

Flags:`

func main() {
	var (
		configFile = flag.String("config", "", "Path to workflow config YAML file")
		dbPath     = flag.String("db", "", "Path to SQLite workflow database")
		dirPath    = flag.String("dir", "", "Directory of stored workflow YAML files")
		redisURL   = flag.String("redis", "", "Redis URL or host:port for the redis marking store")
		natsURL    = flag.String("nats", "", "NATS server URL to forward workflow events to")
		addr       = flag.String("addr", ":8080", "Listen address for serve")
		marking    = flag.String("marking", "", "Comma separated places to highlight in dump")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(1)
	}

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Workflows.Validate(); err != nil {
		logger.Warn("workflow configuration is ambiguous", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	metrics := prometheus.NewRegistry()
	app, err := setup(ctx, cfg, options{
		dbPath:   *dbPath,
		dirPath:  *dirPath,
		redisURL: *redisURL,
		natsURL:  *natsURL,
		metrics:  metrics,
		logger:   logger,
	})
	if err != nil {
		stop()
		log.Fatalf("Failed to set up: %v", err)
	}
	code := 0
	if err := run(ctx, command, flag.Args()[1:], app, cfg, runOptions{
		addr:    *addr,
		marking: *marking,
		metrics: metrics,
		logger:  logger,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr)
			flag.Usage()
		}
		code = 1
	}

	app.close()
	stop()
	os.Exit(code)
}

// errUsage marks errors caused by a malformed command line.
var errUsage = errors.New("usage")

type runOptions struct {
	addr    string
	marking string
	metrics *prometheus.Registry
	logger  *slog.Logger
}

// run executes one command. It never exits the process, so the caller can
// release the application before reporting the result.
func run(ctx context.Context, command string, args []string, app *application, cfg *config.File, opts runOptions) error {
	switch command {
	case "list":
		list(app.registry)
		return nil
	case "dump":
		if len(args) == 0 || args[0] == "" {
			return fmt.Errorf("%w: dump requires a workflow name", errUsage)
		}
		if err := dump(app.registry, args[0], opts.marking); err != nil {
			return fmt.Errorf("dump failed: %w", err)
		}
		return nil
	case "import":
		target := app.target()
		if target == nil {
			return fmt.Errorf("%w: import requires -db or -dir", errUsage)
		}
		if err := importWorkflows(ctx, target, cfg.Workflows, opts.logger); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		return nil
	case "serve":
		if err := serve(ctx, opts.addr, app, opts.metrics, opts.logger); err != nil {
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func loadConfig(path string) (*config.File, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.DefaultFile()
	overrides, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}
	overrides.Apply(&cfg)
	return &cfg, nil
}

func list(reg *registry.Registry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tPLACES\tTRANSITIONS\tSUPPORTS")
	for _, name := range reg.Names() {
		wf, err := reg.Workflow(name)
		if err != nil {
			continue
		}
		kind := workflow.TypeWorkflow
		if wf.IsStateMachine() {
			kind = workflow.TypeStateMachine
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			name, kind,
			len(wf.Definition().Places()),
			len(wf.Definition().Transitions()),
			strings.Join(reg.Supports(name), ","),
		)
	}
	_ = w.Flush()
}

func dump(reg *registry.Registry, name, places string) error {
	wf, err := reg.Workflow(name)
	if err != nil {
		return err
	}

	var marking workflow.Marking
	for _, place := range strings.Split(places, ",") {
		place = strings.TrimSpace(place)
		if place == "" {
			continue
		}
		if !wf.Definition().HasPlace(place) {
			return fmt.Errorf("%w: %q", workflow.ErrUnknownPlace, place)
		}
		marking.Mark(place)
	}

	fmt.Print(workflow.DumpDOT(wf, marking))
	return nil
}

func serve(ctx context.Context, addr string, app *application, metrics *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	mux.Handle("/", server.NewRouter(server.NewHandler(app.registry), app.observer))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving workflow inspection", "addr", addr, "workflows", len(app.registry.Names()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
