package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/mveselov-dev/songsmith/driver"
	"github.com/mveselov-dev/songsmith/evidence"
	"github.com/mveselov-dev/songsmith/internal/observability"
	"github.com/mveselov-dev/songsmith/internal/telemetry"
	"github.com/mveselov-dev/songsmith/notify"
	"github.com/mveselov-dev/songsmith/orchestrator"
	"github.com/mveselov-dev/songsmith/planner"
	"github.com/mveselov-dev/songsmith/state"
	"github.com/mveselov-dev/songsmith/validator"
)

const appVersion = "0.1.0"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "resume":
		err = runResume(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "reset":
		err = runReset(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: songsmith <generate|resume|status|reset|serve> [flags]")
}

type pipelineConfig struct {
	dbBackend      string
	dbURL          string
	studioURL      string
	driverURL      string
	driverToken    string
	evaluatorURL   string
	evaluatorToken string
	evidenceDir    string
	s3Bucket       string
	s3Prefix       string
	s3Region       string
	webhookURL     string
	webhookToken   string
	maxRetries     int
	retryDelay     time.Duration
	otlpEndpoint   string
	otlpInsecure   bool
	dryRun         bool
}

func registerPipelineFlags(flags *flag.FlagSet) *pipelineConfig {
	cfg := &pipelineConfig{}
	registerStoreFlags(flags, &cfg.dbBackend, &cfg.dbURL)
	flags.StringVar(&cfg.studioURL, "studio-url", envStr("SONGSMITH_STUDIO_URL", ""), "Studio base URL")
	flags.StringVar(&cfg.driverURL, "driver-url", envStr("SONGSMITH_DRIVER_URL", ""), "Automation sidecar base URL")
	flags.StringVar(&cfg.driverToken, "driver-token", envStr("SONGSMITH_DRIVER_TOKEN", ""), "Automation sidecar bearer token")
	flags.StringVar(&cfg.evaluatorURL, "evaluator-url", envStr("SONGSMITH_EVALUATOR_URL", ""), "Evaluator endpoint URL")
	flags.StringVar(&cfg.evaluatorToken, "evaluator-token", envStr("SONGSMITH_EVALUATOR_TOKEN", ""), "Evaluator bearer token")
	flags.StringVar(&cfg.evidenceDir, "evidence-dir", envStr("SONGSMITH_EVIDENCE_DIR", ".songsmith/evidence"), "Local evidence directory")
	flags.StringVar(&cfg.s3Bucket, "s3-bucket", envStr("SONGSMITH_S3_BUCKET", ""), "S3 bucket for evidence uploads")
	flags.StringVar(&cfg.s3Prefix, "s3-prefix", envStr("SONGSMITH_S3_PREFIX", ""), "S3 key prefix for evidence uploads")
	flags.StringVar(&cfg.s3Region, "s3-region", envStr("SONGSMITH_S3_REGION", ""), "S3 region for evidence uploads")
	flags.StringVar(&cfg.webhookURL, "webhook-url", envStr("SONGSMITH_WEBHOOK_URL", ""), "Webhook receiving terminal outcomes")
	flags.StringVar(&cfg.webhookToken, "webhook-token", envStr("SONGSMITH_WEBHOOK_TOKEN", ""), "Webhook bearer token")
	flags.IntVar(&cfg.maxRetries, "max-retries", envInt("SONGSMITH_MAX_RETRIES", 3), "Full-sequence retry budget")
	flags.DurationVar(&cfg.retryDelay, "retry-delay", envDuration("SONGSMITH_RETRY_DELAY", 30*time.Second), "Fixed delay between attempts")
	flags.StringVar(&cfg.otlpEndpoint, "otlp-endpoint", envStr("SONGSMITH_OTLP_ENDPOINT", ""), "OTLP trace endpoint (empty disables tracing)")
	flags.BoolVar(&cfg.otlpInsecure, "otlp-insecure", true, "Use plain HTTP for the OTLP endpoint")
	flags.BoolVar(&cfg.dryRun, "dry-run", false, "Run against the simulated studio with every step approved")
	return cfg
}

func registerStoreFlags(flags *flag.FlagSet, backend, dsn *string) {
	flags.StringVar(backend, "db-backend", envStr("SONGSMITH_DB_BACKEND", "sqlite"), "State backend: sqlite or postgres")
	flags.StringVar(dsn, "db-url", envStr("SONGSMITH_DB_URL", "songsmith.db"), "SQLite path or Postgres DSN")
}

func registerRequestFlags(flags *flag.FlagSet, req *planner.GenerationRequest) {
	flags.StringVar(&req.Title, "title", "", "Song title")
	flags.StringVar(&req.Lyrics, "lyrics", "", "Song lyrics")
	flags.StringVar(&req.Style, "style", "", "Style prompt")
	flags.StringVar(&req.ModelID, "model", "", "Model ID")
	flags.StringVar(&req.Persona, "persona", "", "Persona name")
	flags.StringVar(&req.Workspace, "workspace", "", "Workspace name")
}

func runGenerate(args []string) error {
	flags := flag.NewFlagSet("generate", flag.ExitOnError)
	cfg := registerPipelineFlags(flags)
	requestFile := flags.String("request", "", "YAML file with the generation request")
	runID := flags.String("run-id", "", "Run ID (minted when empty)")
	var overrides planner.GenerationRequest
	registerRequestFlags(flags, &overrides)
	_ = flags.Parse(args)

	req := planner.GenerationRequest{}
	if *requestFile != "" {
		loaded, err := loadRequestFile(*requestFile)
		if err != nil {
			return err
		}
		req = loaded
	}
	mergeRequest(&req, overrides)
	if *runID != "" {
		req.RunID = *runID
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	ctx := context.Background()
	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	meta, err := p.service.Run(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(meta)
}

func runResume(args []string) error {
	flags := flag.NewFlagSet("resume", flag.ExitOnError)
	cfg := registerPipelineFlags(flags)
	requestFile := flags.String("request", "", "YAML file with the original request, for metadata echo")
	runID := flags.String("run-id", "", "Run ID to resume")
	_ = flags.Parse(args)

	if *runID == "" {
		return errors.New("run-id required")
	}
	req := planner.GenerationRequest{RunID: *runID}
	if *requestFile != "" {
		loaded, err := loadRequestFile(*requestFile)
		if err != nil {
			return err
		}
		loaded.RunID = *runID
		req = loaded
	}

	ctx := context.Background()
	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	meta, err := p.service.Run(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(meta)
}

func runStatus(args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	var backend, dsn string
	registerStoreFlags(flags, &backend, &dsn)
	runID := flags.String("run-id", "", "Run ID")
	_ = flags.Parse(args)

	if *runID == "" {
		return errors.New("run-id required")
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, backend, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	record, found, err := store.Load(ctx, *runID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("run %s not found", *runID)
	}
	return printJSON(record)
}

func runReset(args []string) error {
	flags := flag.NewFlagSet("reset", flag.ExitOnError)
	var backend, dsn string
	registerStoreFlags(flags, &backend, &dsn)
	runID := flags.String("run-id", "", "Run ID")
	_ = flags.Parse(args)

	if *runID == "" {
		return errors.New("run-id required")
	}

	ctx := context.Background()
	store, db, err := openStore(ctx, backend, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("run %s cleared\n", *runID)
	return nil
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg := registerPipelineFlags(flags)
	listen := flags.String("listen", envStr("SONGSMITH_LISTEN", ":8080"), "Listen address")
	maxConcurrent := flags.Int("max-concurrent", envInt("SONGSMITH_MAX_CONCURRENT", 4), "Concurrent run limit")
	_ = flags.Parse(args)

	ctx := context.Background()
	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	supervisor := orchestrator.NewSupervisor(ctx, p.service, nil, *maxConcurrent)
	handler := orchestrator.NewHTTPHandler(supervisor, p.store, nil)

	logger := observability.NewLogger("songsmith")
	logger.Info("server listening", "event", "server_started", "addr", *listen, "dry_run", cfg.dryRun)

	server := &http.Server{
		Addr:              *listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type pipeline struct {
	service *orchestrator.Service
	store   state.Store
	close   func()
}

func buildPipeline(ctx context.Context, cfg *pipelineConfig) (*pipeline, error) {
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.otlpEndpoint, "songsmith", appVersion, cfg.otlpInsecure)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	})

	var store state.Store
	if cfg.dryRun {
		store = state.NewMemStore()
	} else {
		s, db, err := openStore(ctx, cfg.dbBackend, cfg.dbURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		cleanup = append(cleanup, func() { _ = db.Close() })
		store = s
	}

	var drv driver.UIDriver
	var eval validator.Evaluator
	if cfg.dryRun {
		sim := driver.NewSimDriver()
		seedDrySession(sim)
		drv = sim
		eval = validator.ApproveEvaluator{}
	} else {
		if cfg.studioURL == "" {
			closeAll()
			return nil, errors.New("studio-url or SONGSMITH_STUDIO_URL required (or -dry-run)")
		}
		if cfg.driverURL == "" {
			closeAll()
			return nil, errors.New("driver-url or SONGSMITH_DRIVER_URL required (or -dry-run)")
		}
		if cfg.evaluatorURL == "" {
			closeAll()
			return nil, errors.New("evaluator-url or SONGSMITH_EVALUATOR_URL required (or -dry-run)")
		}
		drv = driver.NewRemoteDriver(cfg.driverURL, cfg.driverToken)
		eval = &validator.HTTPEvaluator{Endpoint: cfg.evaluatorURL, Token: cfg.evaluatorToken}
	}

	evStore, err := buildEvidenceStore(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, err
	}

	val, err := validator.NewStepValidator(drv, eval, evStore, nil)
	if err != nil {
		closeAll()
		return nil, err
	}
	exec := planner.NewExecutor(drv, cfg.studioURL)

	var notifier notify.Notifier = notify.NewLogNotifier(nil)
	if cfg.webhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.webhookURL, cfg.webhookToken, nil)
	}

	service := orchestrator.NewService(store, planner.StudioPlanner{}, exec, val, notifier, orchestrator.Config{
		MaxRetries: cfg.maxRetries,
		RetryDelay: cfg.retryDelay,
		Metrics:    observability.NewMetrics(nil),
	})

	return &pipeline{service: service, store: store, close: closeAll}, nil
}

func buildEvidenceStore(ctx context.Context, cfg *pipelineConfig) (evidence.Store, error) {
	if cfg.dryRun {
		return evidence.NewMemStore(), nil
	}
	if cfg.s3Bucket != "" {
		return evidence.NewS3Store(ctx, evidence.S3Config{
			Bucket: cfg.s3Bucket,
			Prefix: cfg.s3Prefix,
			Region: cfg.s3Region,
		})
	}
	return evidence.NewLocalStore(cfg.evidenceDir)
}

// seedDrySession gives the simulated studio a finished song so a dry run
// exercises the extraction path end to end.
func seedDrySession(sim *driver.SimDriver) {
	songID := uuid.NewString()
	if loc, ok := planner.Locator("song-id"); ok {
		sim.SetElementText(loc, songID)
	}
	if loc, ok := planner.Locator("song-link"); ok {
		sim.SetElementText(loc, "https://studio.local/song/"+songID)
	}
}

func openStore(ctx context.Context, backend, dsn string) (state.Store, *sql.DB, error) {
	switch backend {
	case "postgres":
		db, err := openDB(ctx, "pgx", dsn)
		if err != nil {
			return nil, nil, err
		}
		store, err := state.NewPostgresStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case "sqlite":
		db, err := openDB(ctx, "sqlite", dsn)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(1)
		store, err := state.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown db backend %q", backend)
	}
}

func openDB(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db-url or SONGSMITH_DB_URL required")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func loadRequestFile(path string) (planner.GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return planner.GenerationRequest{}, err
	}
	var req planner.GenerationRequest
	if err := yaml.Unmarshal(data, &req); err != nil {
		return planner.GenerationRequest{}, fmt.Errorf("parse request file %s: %w", path, err)
	}
	return req, nil
}

// mergeRequest overlays non-empty flag values onto a request loaded from a
// file, so flags win.
func mergeRequest(req *planner.GenerationRequest, overrides planner.GenerationRequest) {
	if overrides.Title != "" {
		req.Title = overrides.Title
	}
	if overrides.Lyrics != "" {
		req.Lyrics = overrides.Lyrics
	}
	if overrides.Style != "" {
		req.Style = overrides.Style
	}
	if overrides.ModelID != "" {
		req.ModelID = overrides.ModelID
	}
	if overrides.Persona != "" {
		req.Persona = overrides.Persona
	}
	if overrides.Workspace != "" {
		req.Workspace = overrides.Workspace
	}
}

func printJSON(payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
