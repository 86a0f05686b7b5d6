package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lootforge/internal/config"
	"lootforge/internal/droprate"
	"lootforge/internal/editor"
	"lootforge/internal/export"
	"lootforge/internal/linker"
	"lootforge/internal/metrics"
	"lootforge/internal/registry"
	"lootforge/internal/session"
	"lootforge/internal/util/jsonutil"
	"lootforge/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	dataDir := flag.String("data", cfg.DataDir, "datapack root")
	exportTo := flag.String("export", "", "write an export (directory for disk exports, any value for s3)")
	sessionPath := flag.String("session", cfg.Session.Path, "session file or sqlite database")
	rulesPath := flag.String("rules", cfg.LinkRules, "YAML link rules file")
	preview := flag.Bool("preview", cfg.Preview, "read and export edited views")
	search := flag.String("search", "", "print entries whose identifier contains this text")
	rates := flag.String("rates", "", "print drop rates of a loot table")
	diff := flag.String("diff", "", "print the changes made to a loot table")
	simulate := flag.Int("simulate", 0, "with -rates, also roll the table this many times")
	seed := flag.Uint64("seed", 1, "simulation seed")
	apply := flag.String("apply", "", "JSON file with {document_id, operations} to apply before reporting")
	watch := flag.Bool("watch", false, "follow datapack changes until interrupted")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address")
	flag.Parse()

	cfg.DataDir = *dataDir
	cfg.LinkRules = *rulesPath
	cfg.Preview = *preview
	if *sessionPath != cfg.Session.Path {
		cfg.Session.Path = *sessionPath
		if cfg.Session.DSN == "" {
			cfg.Session.Driver = config.SessionDriverFor(*sessionPath, "")
		}
	}
	if *exportTo != "" && cfg.Export.Target == config.ExportDisk {
		cfg.Export.Dir = *exportTo
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, cliArgs{
		export:      *exportTo != "",
		apply:       *apply,
		search:      *search,
		rates:       *rates,
		diff:        *diff,
		simulate:    *simulate,
		seed:        *seed,
		watch:       *watch,
		metricsAddr: *metricsAddr,
	}); err != nil {
		logger.Error("lootforge failed", "error", err)
		os.Exit(1)
	}
}

type cliArgs struct {
	export      bool
	apply       string
	search      string
	rates       string
	diff        string
	simulate    int
	seed        uint64
	watch       bool
	metricsAddr string
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args cliArgs) error {
	dir, err := registry.OpenDir(cfg.DataDir, registry.WithLogger(logger))
	if err != nil {
		return err
	}
	cached := registry.NewCached(dir, registry.DefaultCacheConfig())

	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg)
	metrics.RegisterCache(promReg, cached)
	if args.metricsAddr != "" {
		srv := &http.Server{Addr: args.metricsAddr, Handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rules, err := linker.LoadRules(cfg.LinkRules)
	if err != nil {
		return err
	}
	sessions, err := openSession(ctx, cfg.Session)
	if err != nil {
		return err
	}
	if c, ok := sessions.(io.Closer); ok {
		defer c.Close()
	}
	exports, err := openExport(cfg.Export)
	if err != nil {
		return err
	}

	ws, err := workspace.New(cached,
		workspace.WithLogger(logger),
		workspace.WithMetrics(collector),
		workspace.WithRules(rules),
		workspace.WithParseCache(cfg.ParseCache),
		workspace.WithAuditCap(cfg.AuditCap),
		workspace.WithPreview(cfg.Preview),
		workspace.WithSessionStore(sessions),
		workspace.WithExportStore(exports),
	)
	if err != nil {
		return err
	}
	if err := ws.LoadCorpus(ctx); err != nil {
		return err
	}
	ws.LoadSession(ctx)
	if args.apply != "" {
		if err := applyFile(ctx, ws, args.apply); err != nil {
			return err
		}
	}

	if args.search != "" {
		if err := printJSON(ws.Search(ctx, args.search)); err != nil {
			return err
		}
	}
	if args.rates != "" {
		report, ok := ws.DropRates(args.rates)
		if !ok {
			return fmt.Errorf("loot table %q not found", args.rates)
		}
		if err := printJSON(report); err != nil {
			return err
		}
		if args.simulate > 0 {
			res, _ := ws.Simulate(args.rates, droprate.SimOptions{Seed: args.seed, Trials: args.simulate})
			if err := printJSON(res); err != nil {
				return err
			}
		}
	}
	if args.diff != "" {
		d, ok := ws.Diff(args.diff)
		if !ok {
			return fmt.Errorf("loot table %q not found", args.diff)
		}
		if err := printJSON(d); err != nil {
			return err
		}
	}
	if args.watch {
		logger.Info("watching datapack", "root", dir.Root())
		if err := ws.Watch(ctx, dir, cached); err != nil {
			return err
		}
		// interrupted: still export and save what was edited
		ctx = context.WithoutCancel(ctx)
	}
	if args.export {
		id, ok := ws.Export(ctx)
		if !ok {
			return errors.New("export failed")
		}
		fmt.Println(id)
	}
	if !ws.SaveSession(ctx) {
		return errors.New("session not saved")
	}
	return nil
}

func openSession(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Driver {
	case config.SessionPostgres:
		return session.NewPostgres(ctx, cfg.DSN)
	case config.SessionSQLite:
		return session.NewSQLite(ctx, cfg.Path)
	default:
		return session.NewFileStore(cfg.Path), nil
	}
}

func openExport(cfg config.ExportConfig) (export.Store, error) {
	switch cfg.Target {
	case config.ExportS3:
		return export.NewS3Store(cfg.S3)
	case config.ExportMemory:
		return export.NewMemoryStore(), nil
	default:
		return export.NewDiskStore(cfg.Dir), nil
	}
}

func printJSON(v any) error {
	raw, err := jsonutil.MarshalNoEscapeIndent(v)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(raw, '\n'))
	return err
}

// applyFile replays an edit log file onto the workspace.
func applyFile(ctx context.Context, ws *workspace.Workspace, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read edits: %w", err)
	}
	var log editor.EditLog
	if err := jsonutil.UnmarshalStrict(raw, &log); err != nil {
		return fmt.Errorf("decode edits %s: %w", path, err)
	}
	applied, err := ws.ApplyLog(ctx, log)
	if err != nil {
		return err
	}
	slog.Info("edits applied", "doc", log.DocumentID, "operations", applied)
	return nil
}
