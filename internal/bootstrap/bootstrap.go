// Package bootstrap wires the pipeline and its stores from configuration.
// The server, the extract command and the cloud function share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"materialflow/internal/compose"
	"materialflow/internal/config"
	"materialflow/internal/decision"
	"materialflow/internal/domain"
	"materialflow/internal/email/noop"
	"materialflow/internal/email/ses"
	"materialflow/internal/intake"
	"materialflow/internal/lifecycle"
	"materialflow/internal/oracle"
	"materialflow/internal/oracle/claude"
	"materialflow/internal/oracle/gemini"
	"materialflow/internal/oracle/openai"
	"materialflow/internal/oracle/vertex"
	"materialflow/internal/port"
	firestoremirror "materialflow/internal/repository/firestore"
	"materialflow/internal/repository/postgres"
	"materialflow/internal/service"
	"materialflow/internal/storage/gcs"
	"materialflow/internal/storage/local"
	s3storage "materialflow/internal/storage/s3"
	"materialflow/internal/validator"
	"materialflow/internal/verification"
)

// App holds the wired components. Optional stores are nil when unconfigured.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sqlx.DB
	Pipeline  service.PipelineService
	Results   port.ResultRepository
	Lifecycle port.LifecycleRepository
	Tokens    service.TokenService
	Feedback  service.FeedbackService
	S3        *s3storage.Client
	GCS       *gcs.Store

	closers []func() error
}

// New connects the stores, applies migrations and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg, logger := a.Config, a.Logger

	a.DB, err = postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)
	if err := postgres.Migrate(a.DB); err != nil {
		return err
	}
	a.Results = postgres.NewResultRepo(a.DB)
	a.Lifecycle = postgres.NewLifecycleRepo(a.DB)

	if cfg.S3.Bucket != "" {
		a.S3, err = s3storage.NewClient(ctx, &cfg.S3, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}
	if cfg.GCP.UploadBucket != "" {
		a.GCS, err = gcs.NewStore(ctx, cfg.GCP.UploadBucket, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize GCS client: %w", err)
		}
		a.closers = append(a.closers, a.GCS.Close)
	}

	sink, err := a.lifecycleSink(ctx)
	if err != nil {
		return err
	}

	adapter, verifier, err := a.oracle(ctx)
	if err != nil {
		return err
	}

	evidence, err := a.evidenceStore()
	if err != nil {
		return err
	}

	notifier, err := a.notifier(ctx)
	if err != nil {
		return err
	}

	a.Tokens = service.NewTokenService(cfg.Feedback)
	a.Feedback = service.NewFeedbackService(a.Tokens, a.Results, logger)

	var signer compose.TokenSigner
	if cfg.Feedback.Secret != "" {
		signer = a.Tokens
	}

	deps := service.PipelineDeps{
		Registrar: intake.NewRegistrar(domain.ProductMode(cfg.Pipeline.ProductMode), logger),
		Extractor: adapter,
		Validator: validator.NewEngine(validator.DefaultRegistry()),
		Decider:   decision.NewEngine(decision.PolicyFromConfig(&cfg.Pipeline)),
		Verifier: verification.NewStage(
			domain.VerificationMode(cfg.Verification.Mode),
			cfg.Pipeline.AcceptThreshold,
			evidence,
			verifier,
			logger,
		),
		Composer:  compose.NewComposer(cfg.Email.FeedbackURL, signer),
		Lifecycle: sink,
		Results:   a.Results,
		Notifier:  notifier,
	}
	opts := service.PipelineOptions{
		MaxParallel:     cfg.Pipeline.MaxParallel,
		DocumentTimeout: cfg.Pipeline.DocumentTimeout,
	}
	if cfg.Pipeline.Archive {
		switch {
		case a.S3 != nil:
			deps.Archive = a.S3
			opts.ArchiveBucket = a.S3.Bucket()
		case a.GCS != nil:
			deps.Archive = a.GCS
			opts.ArchiveBucket = a.GCS.Bucket()
		default:
			logger.Warn("bootstrap.New: archive enabled but no object store configured")
		}
		opts.ArchivePrefix = cfg.S3.ArchivePrefix
	}

	a.Pipeline = service.NewPipelineService(deps, opts, logger)
	return nil
}

// lifecycleSink fans entries out to the relational store and the optional
// file and Firestore mirrors.
func (a *App) lifecycleSink(ctx context.Context) (port.LifecycleSink, error) {
	sinks := []port.LifecycleSink{a.Lifecycle}
	if path := a.Config.Lifecycle.FilePath; path != "" {
		sinks = append(sinks, lifecycle.NewFileSink(path))
	}
	if a.Config.Lifecycle.Firestore {
		client, err := firestoremirror.NewClient(ctx, a.Config.GCP.ProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		sinks = append(sinks, firestoremirror.NewLifecycleMirror(client, a.Config.GCP.FirestoreCollection, a.Logger))
	}
	return lifecycle.NewMultiSink(sinks...), nil
}

// oracle registers the providers, builds the fallback chain and returns the
// extraction adapter with a crop verifier sharing its rate limiter.
func (a *App) oracle(ctx context.Context) (*oracle.Adapter, port.FieldVerifier, error) {
	cfg := a.Config

	var stager vertex.Stager
	if a.GCS != nil {
		stager = a.GCS
	}
	oracle.RegisterProvider("gemini", func(pc *config.OracleProviderConfig) (port.ExtractionOracle, error) {
		return gemini.NewOracle(pc), nil
	})
	oracle.RegisterProvider("claude", func(pc *config.OracleProviderConfig) (port.ExtractionOracle, error) {
		return claude.NewOracle(pc), nil
	})
	oracle.RegisterProvider("openai", func(pc *config.OracleProviderConfig) (port.ExtractionOracle, error) {
		return openai.NewOracle(pc), nil
	})
	oracle.RegisterProvider("vertex", func(pc *config.OracleProviderConfig) (port.ExtractionOracle, error) {
		return vertex.New(ctx, pc, &cfg.GCP, stager)
	})

	chain, uploader, err := oracle.Build(&cfg.Oracle, a.Logger)
	if err != nil {
		return nil, nil, err
	}

	profile := oracle.DefaultProfile()
	if cfg.Oracle.ProfilePath != "" {
		if profile, err = oracle.LoadProfile(cfg.Oracle.ProfilePath); err != nil {
			return nil, nil, err
		}
	}

	adapter := oracle.NewAdapter(chain, uploader, oracle.AdapterOptions{
		Shape:          domain.CallShape(cfg.Oracle.CallShape),
		ProductMode:    domain.ProductMode(cfg.Pipeline.ProductMode),
		Profile:        profile,
		CallTimeout:    cfg.Oracle.CallTimeout,
		RatePerMinute:  cfg.Oracle.RatePerMinute,
		Burst:          cfg.Oracle.Burst,
		LegacyFreeText: cfg.Oracle.LegacyFreeText,
	}, a.Logger)
	return adapter, oracle.NewCropVerifier(chain, profile, adapter.Limiter()), nil
}

func (a *App) evidenceStore() (port.EvidenceStore, error) {
	cfg := a.Config.Verification
	switch cfg.Evidence {
	case "s3":
		if a.S3 == nil {
			return nil, errors.New("verification.evidence=s3 requires s3.bucket")
		}
		return s3storage.NewCropStore(a.S3, a.Config.S3.CropPrefix, cfg.CropDir, a.Logger), nil
	case "", "local":
		return local.NewCropStore(cfg.CropDir), nil
	default:
		return nil, fmt.Errorf("unknown verification evidence source %q", cfg.Evidence)
	}
}

func (a *App) notifier(ctx context.Context) (port.Notifier, error) {
	cfg := a.Config.Email
	switch cfg.Provider {
	case "ses":
		return ses.NewSESNotifier(ctx, cfg.Region, cfg.FromAddress, cfg.FromName, a.Logger)
	case "", "noop":
		return noop.NewNoopNotifier(a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// Inbox returns the S3 inbox source, or nil without an S3 bucket.
func (a *App) Inbox() port.InboundSource {
	if a.S3 == nil {
		return nil
	}
	return s3storage.NewInbox(a.S3, a.Config.S3.InboxPrefix, a.Logger)
}

// IntakeConfig converts the intake settings for the worker.
func (a *App) IntakeConfig() service.IntakeConfig {
	cfg := a.Config.Intake
	return service.IntakeConfig{
		PollInterval:   time.Duration(cfg.PollIntervalSecs) * time.Second,
		Concurrency:    cfg.Concurrency,
		MessageTimeout: time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

// Close releases every opened resource in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
