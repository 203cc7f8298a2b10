package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	DB           DBConfig
	S3           S3Config
	GCP          GCPConfig
	Log          LogConfig
	Oracle       OracleConfig
	Pipeline     PipelineConfig
	Verification VerificationConfig
	Intake       IntakeConfig
	Lifecycle    LifecycleConfig
	Email        EmailConfig
	Feedback     FeedbackConfig
	CORS         CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Environment    string        `mapstructure:"environment"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	RequireAPIAuth bool          `mapstructure:"require_api_auth"`
}

// DBConfig holds relational store settings. Driver is "pgx" or "sqlite".
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the connection string for the configured driver.
func (d *DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	InboxPrefix   string `mapstructure:"inbox_prefix"`
	CropPrefix    string `mapstructure:"crop_prefix"`
	ArchivePrefix string `mapstructure:"archive_prefix"`
}

// GCPConfig holds Google Cloud settings used by the Vertex AI oracle, the
// GCS upload handle and the Firestore lifecycle mirror.
type GCPConfig struct {
	ProjectID           string `mapstructure:"project_id"`
	Location            string `mapstructure:"location"`
	UploadBucket        string `mapstructure:"upload_bucket"`
	FirestoreCollection string `mapstructure:"firestore_collection"`
	EventPrefix         string `mapstructure:"event_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OracleProviderConfig holds settings for a single extraction oracle provider.
type OracleProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// OracleConfig holds extraction oracle settings with provider fallback.
type OracleConfig struct {
	Primary        OracleProviderConfig `mapstructure:"primary"`
	Secondary      OracleProviderConfig `mapstructure:"secondary"`
	Tertiary       OracleProviderConfig `mapstructure:"tertiary"`
	CallShape      string               `mapstructure:"call_shape"`
	CallTimeout    time.Duration        `mapstructure:"call_timeout"`
	RatePerMinute  int                  `mapstructure:"rate_per_minute"`
	Burst          int                  `mapstructure:"burst"`
	LegacyFreeText bool                 `mapstructure:"legacy_free_text"`
	ProfilePath    string               `mapstructure:"profile_path"`
}

// Providers returns the configured providers in fallback order.
func (o *OracleConfig) Providers() []*OracleProviderConfig {
	var out []*OracleProviderConfig
	for _, p := range []*OracleProviderConfig{&o.Primary, &o.Secondary, &o.Tertiary} {
		if p.Provider != "" {
			out = append(out, p)
		}
	}
	return out
}

// PipelineConfig holds the decision policy and variant selection.
type PipelineConfig struct {
	ProductMode        string        `mapstructure:"product_mode"`
	RetryBudget        int           `mapstructure:"retry_budget"`
	RetryEnabled       bool          `mapstructure:"retry_enabled"`
	RetryWithMVS       bool          `mapstructure:"retry_with_mvs"`
	AcceptThreshold    float64       `mapstructure:"accept_threshold"`
	FallbackConfidence float64       `mapstructure:"fallback_confidence"`
	DocumentTimeout    time.Duration `mapstructure:"document_timeout"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	Archive            bool          `mapstructure:"archive"`
}

// VerificationConfig selects the verification mode and evidence source.
type VerificationConfig struct {
	Mode     string `mapstructure:"mode"`
	Evidence string `mapstructure:"evidence"`
	CropDir  string `mapstructure:"crop_dir"`
}

// IntakeConfig holds inbound source polling settings.
type IntakeConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	PollIntervalSecs int  `mapstructure:"poll_interval_secs"`
	Concurrency      int  `mapstructure:"concurrency"`
	TimeoutSecs      int  `mapstructure:"timeout_secs"`
}

// LifecycleConfig selects additional lifecycle sinks.
type LifecycleConfig struct {
	FilePath  string `mapstructure:"file_path"`
	Firestore bool   `mapstructure:"firestore"`
}

// EmailConfig holds notification delivery settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	FeedbackURL string `mapstructure:"feedback_url"`
}

// FeedbackConfig holds signing settings for feedback and service tokens.
type FeedbackConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	Expiry time.Duration `mapstructure:"expiry"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from environment variables with the MATERIALFLOW_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MATERIALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Bind environment variables explicitly for nested keys
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, "MATERIALFLOW_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	cfg := &Config{}

	// Cloud Run and similar platforms set PORT. Use it unless the server port is set explicitly.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("MATERIALFLOW_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:           serverPort,
		ReadTimeout:    v.GetDuration("server.read_timeout"),
		WriteTimeout:   v.GetDuration("server.write_timeout"),
		Environment:    v.GetString("server.environment"),
		MaxUploadMB:    v.GetInt64("server.max_upload_mb"),
		RequireAPIAuth: v.GetBool("server.require_api_auth"),
	}
	cfg.DB = DBConfig{
		Driver:   v.GetString("db.driver"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		Path:     v.GetString("db.path"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		InboxPrefix:   v.GetString("s3.inbox_prefix"),
		CropPrefix:    v.GetString("s3.crop_prefix"),
		ArchivePrefix: v.GetString("s3.archive_prefix"),
	}
	cfg.GCP = GCPConfig{
		ProjectID:           v.GetString("gcp.project_id"),
		Location:            v.GetString("gcp.location"),
		UploadBucket:        v.GetString("gcp.upload_bucket"),
		FirestoreCollection: v.GetString("gcp.firestore_collection"),
		EventPrefix:         v.GetString("gcp.event_prefix"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Oracle = OracleConfig{
		Primary:        providerConfig(v, "oracle.primary"),
		Secondary:      providerConfig(v, "oracle.secondary"),
		Tertiary:       providerConfig(v, "oracle.tertiary"),
		CallShape:      v.GetString("oracle.call_shape"),
		CallTimeout:    v.GetDuration("oracle.call_timeout"),
		RatePerMinute:  v.GetInt("oracle.rate_per_minute"),
		Burst:          v.GetInt("oracle.burst"),
		LegacyFreeText: v.GetBool("oracle.legacy_free_text"),
		ProfilePath:    v.GetString("oracle.profile_path"),
	}
	cfg.Pipeline = PipelineConfig{
		ProductMode:        v.GetString("pipeline.product_mode"),
		RetryBudget:        v.GetInt("pipeline.retry_budget"),
		RetryEnabled:       v.GetBool("pipeline.retry_enabled"),
		RetryWithMVS:       v.GetBool("pipeline.retry_with_mvs"),
		AcceptThreshold:    v.GetFloat64("pipeline.accept_threshold"),
		FallbackConfidence: v.GetFloat64("pipeline.fallback_confidence"),
		DocumentTimeout:    v.GetDuration("pipeline.document_timeout"),
		MaxParallel:        v.GetInt("pipeline.max_parallel"),
		Archive:            v.GetBool("pipeline.archive"),
	}
	cfg.Verification = VerificationConfig{
		Mode:     v.GetString("verification.mode"),
		Evidence: v.GetString("verification.evidence"),
		CropDir:  v.GetString("verification.crop_dir"),
	}
	cfg.Intake = IntakeConfig{
		Enabled:          v.GetBool("intake.enabled"),
		PollIntervalSecs: v.GetInt("intake.poll_interval_secs"),
		Concurrency:      v.GetInt("intake.concurrency"),
		TimeoutSecs:      v.GetInt("intake.timeout_secs"),
	}
	cfg.Lifecycle = LifecycleConfig{
		FilePath:  v.GetString("lifecycle.file_path"),
		Firestore: v.GetBool("lifecycle.firestore"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
		FeedbackURL: v.GetString("email.feedback_url"),
	}
	cfg.Feedback = FeedbackConfig{
		Secret: v.GetString("feedback.secret"),
		Issuer: v.GetString("feedback.issuer"),
		Expiry: v.GetDuration("feedback.expiry"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.max_upload_mb", 50)
	v.SetDefault("server.require_api_auth", false)

	// DB defaults
	v.SetDefault("db.driver", "pgx")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "materialflow")
	v.SetDefault("db.password", "materialflow_secret")
	v.SetDefault("db.name", "materialflow_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "materialflow.db")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "eu-west-1")
	v.SetDefault("s3.bucket", "materialflow-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.inbox_prefix", "inbox/")
	v.SetDefault("s3.crop_prefix", "crops/")
	v.SetDefault("s3.archive_prefix", "archive/")

	// GCP defaults
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.location", "europe-west4")
	v.SetDefault("gcp.upload_bucket", "")
	v.SetDefault("gcp.firestore_collection", "documents")
	v.SetDefault("gcp.event_prefix", "incoming/")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Oracle defaults
	for _, slot := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("oracle."+slot+".provider", "")
		v.SetDefault("oracle."+slot+".api_key", "")
		v.SetDefault("oracle."+slot+".default_model", "")
		v.SetDefault("oracle."+slot+".timeout_secs", 120)
	}
	v.SetDefault("oracle.primary.provider", "gemini")
	v.SetDefault("oracle.call_shape", "auto")
	v.SetDefault("oracle.call_timeout", "2m")
	v.SetDefault("oracle.rate_per_minute", 30)
	v.SetDefault("oracle.burst", 1)
	v.SetDefault("oracle.legacy_free_text", false)
	v.SetDefault("oracle.profile_path", "")

	// Pipeline defaults
	v.SetDefault("pipeline.product_mode", "multi")
	v.SetDefault("pipeline.retry_budget", 2)
	v.SetDefault("pipeline.retry_enabled", true)
	v.SetDefault("pipeline.retry_with_mvs", false)
	v.SetDefault("pipeline.accept_threshold", 0.9)
	v.SetDefault("pipeline.fallback_confidence", 0.7)
	v.SetDefault("pipeline.document_timeout", "10m")
	v.SetDefault("pipeline.max_parallel", 4)
	v.SetDefault("pipeline.archive", true)

	// Verification defaults
	v.SetDefault("verification.mode", "schema")
	v.SetDefault("verification.evidence", "s3")
	v.SetDefault("verification.crop_dir", "crops")

	// Intake defaults
	v.SetDefault("intake.enabled", false)
	v.SetDefault("intake.poll_interval_secs", 30)
	v.SetDefault("intake.concurrency", 2)
	v.SetDefault("intake.timeout_secs", 600)

	// Lifecycle defaults
	v.SetDefault("lifecycle.file_path", "")
	v.SetDefault("lifecycle.firestore", false)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "eu-west-1")
	v.SetDefault("email.from_address", "materials@materialflow.dev")
	v.SetDefault("email.from_name", "Material Intake")
	v.SetDefault("email.feedback_url", "http://localhost:8080/api/v1/feedback")

	// Feedback defaults
	v.SetDefault("feedback.secret", "change-me-in-production")
	v.SetDefault("feedback.issuer", "materialflow")
	v.SetDefault("feedback.expiry", "720h")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")
}

func providerConfig(v *viper.Viper, prefix string) OracleProviderConfig {
	return OracleProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}

func (c *Config) validate() error {
	switch c.Pipeline.ProductMode {
	case "single", "multi":
	default:
		return fmt.Errorf("config: pipeline.product_mode must be single or multi, got %q", c.Pipeline.ProductMode)
	}
	switch c.Verification.Mode {
	case "schema", "visual":
	default:
		return fmt.Errorf("config: verification.mode must be schema or visual, got %q", c.Verification.Mode)
	}
	switch c.Oracle.CallShape {
	case "inline", "two_phase", "auto":
	default:
		return fmt.Errorf("config: oracle.call_shape must be inline, two_phase or auto, got %q", c.Oracle.CallShape)
	}
	if c.Pipeline.RetryBudget < 0 {
		return fmt.Errorf("config: pipeline.retry_budget must not be negative")
	}
	for name, v := range map[string]float64{
		"pipeline.accept_threshold":    c.Pipeline.AcceptThreshold,
		"pipeline.fallback_confidence": c.Pipeline.FallbackConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be between 0 and 1, got %v", name, v)
		}
	}
	if c.Pipeline.FallbackConfidence > c.Pipeline.AcceptThreshold {
		return fmt.Errorf("config: pipeline.fallback_confidence %v exceeds pipeline.accept_threshold %v",
			c.Pipeline.FallbackConfidence, c.Pipeline.AcceptThreshold)
	}
	if c.Intake.PollIntervalSecs <= 0 {
		return fmt.Errorf("config: intake.poll_interval_secs must be positive, got %d", c.Intake.PollIntervalSecs)
	}
	return nil
}
