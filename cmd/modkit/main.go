// modkit runs a single moderation or command operation against a modkit
// database and prints the result as JSON, or serves the same operations over
// HTTP with --listen. It is meant for operators and scripts; chat transports
// embed the modkit package directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/fernandezvara/modkit"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	databaseURL string
	sqlitePath  string
	actor       int64
	target      int64
	operation   string
	args        map[string]string
	register    []string
	retries     int
	health      bool
	listen      string
}

func run(argv []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("modkit", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.databaseURL, "database-url", "", "Postgres URL (overrides MODKIT_DATABASE_URL)")
	flagSet.StringVar(&opts.sqlitePath, "sqlite", "", "SQLite database file (default: MODKIT_SQLITE_PATH, else in-memory)")
	flagSet.Int64Var(&opts.actor, "actor", 0, "acting account id")
	flagSet.Int64Var(&opts.target, "target", 0, "target account id (0 for none)")
	flagSet.StringVar(&opts.operation, "op", "", "operation to run, e.g. warn, create_command, list_commands")
	flagSet.StringToStringVar(&opts.args, "arg", nil, "operation argument as key=value (repeatable)")
	flagSet.StringSliceVar(&opts.register, "register", nil, "register accounts before the operation, as id or id:display_name")
	flagSet.IntVar(&opts.retries, "retries", modkit.DefaultRetryAttempts, "attempts for operations that lose a concurrent update")
	flagSet.BoolVar(&opts.health, "health", false, "print a health report instead of running an operation")
	flagSet.StringVar(&opts.listen, "listen", "", "serve dispatch, health and metrics over HTTP on this address")

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if opts.operation == "" && !opts.health && opts.listen == "" && len(opts.register) == 0 {
		return fmt.Errorf("--op is required")
	}

	cfg, err := modkit.LoadConfig()
	if err != nil {
		return err
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}
	if opts.sqlitePath != "" {
		cfg.DatabaseURL = ""
		cfg.SQLitePath = opts.sqlitePath
	}

	logger, err := cfg.NewLogger(stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, kit, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	registry := prometheus.NewRegistry()
	metrics := modkit.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	service := modkit.NewService(store, append(cfg.ServiceOptions(logger), modkit.WithMetrics(metrics))...)

	for _, entry := range opts.register {
		id, name, err := parseRegistration(entry)
		if err != nil {
			return err
		}
		if _, err := service.Register(ctx, id, nil, name); err != nil {
			return fmt.Errorf("register %d: %w", id, err)
		}
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")

	health := modkit.NewHealthService(service, kit)
	if opts.health {
		return encoder.Encode(health.Health(ctx))
	}
	if opts.listen != "" {
		handler := modkit.NewHandler(service, modkit.WithHealth(health), modkit.WithGatherer(registry))
		return serve(ctx, opts.listen, handler, logger)
	}
	if opts.operation == "" {
		return nil
	}

	req := modkit.Request{
		ActorID:   opts.actor,
		Operation: modkit.Operation(opts.operation),
		Args:      opts.args,
	}
	if opts.target != 0 {
		target := opts.target
		req.TargetID = &target
	}

	result, err := dispatch(ctx, service, req, opts.retries)
	if err != nil {
		return err
	}
	return encoder.Encode(result)
}

// dispatch runs req, retrying lost races, with one request id for every attempt.
func dispatch(ctx context.Context, service *modkit.Service, req modkit.Request, attempts int) (*modkit.Result, error) {
	if modkit.GetRequestID(ctx) == "" {
		ctx = modkit.WithRequestID(ctx, modkit.NewRequestID())
	}
	var result *modkit.Result
	err := modkit.Retry(ctx, attempts, func(ctx context.Context) error {
		var err error
		result, err = service.Dispatch(ctx, req)
		return err
	})
	return result, err
}

func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore picks Postgres when a URL is configured and SQLite otherwise.
func openStore(ctx context.Context, cfg modkit.Config, logger *slog.Logger) (modkit.Store, *dbkit.DBKit, func(), error) {
	if cfg.DatabaseURL != "" {
		kit, err := modkit.OpenPostgres(ctx, cfg.DatabaseURL, cfg.Pool, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		store := modkit.NewBunStore(kit.Bun(), modkit.WithQueryTimeout(cfg.QueryTimeout))
		return store, kit, func() { _ = kit.Close() }, nil
	}

	path := cfg.SQLitePath
	if path == "" {
		path = modkit.MemoryDSN
	}
	db, err := modkit.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, nil, err
	}
	store := modkit.NewBunStore(db, modkit.WithQueryTimeout(cfg.QueryTimeout))
	return store, nil, func() { _ = db.Close() }, nil
}

func parseRegistration(value string) (int64, string, error) {
	idPart, name, _ := strings.Cut(value, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid --register value %q: %w", value, err)
	}
	if name == "" {
		name = idPart
	}
	return id, name, nil
}
