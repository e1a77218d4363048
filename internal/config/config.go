// Package config loads the gateway's process-wide settings once at startup.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file
// (VGATE_CONFIG, default config.yaml), an optional .env file, and the process
// environment. Secrets are only read from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vgate/internal/pkg/errors"
)

// Queue backends.
const (
	BackendCloudflare = "cloudflare"
	BackendRedis      = "redis"
	BackendPostgres   = "postgres"
	BackendKafka      = "kafka"
	BackendSQS        = "sqs"
	BackendPubSub     = "pubsub"
)

const DefaultCloudflareBaseURL = "https://api.cloudflare.com/client/v4"

// Config is immutable after Load; pass it by value.
type Config struct {
	ServiceName     string
	HTTPPort        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	Log   Log
	Queue Queue
}

type Log struct {
	Level     string
	Format    string
	AddSource bool
}

// Queue selects and configures the queue backend.
type Queue struct {
	Backend string
	// Timeout bounds a single publish call.
	Timeout time.Duration

	Cloudflare Cloudflare
	Redis      Redis
	Postgres   Postgres
	Kafka      Kafka
	SQS        SQS
	PubSub     PubSub
}

type Cloudflare struct {
	AccountID string
	QueueName string
	APIToken  string
	BaseURL   string
}

type Redis struct {
	Addr string
	List string
}

type Postgres struct {
	DatabaseURL string
	Table       string
	AutoMigrate bool
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type SQS struct {
	QueueURL string
	Region   string
	Endpoint string
}

type PubSub struct {
	Project string
	Topic   string
	// CredentialsFile empty means Application Default Credentials.
	CredentialsFile string
	// Endpoint targets an emulator.
	Endpoint string
}

// Name is the queue identity reported by the health endpoint.
func (q Queue) Name() string {
	switch q.Backend {
	case BackendRedis:
		return q.Redis.List
	case BackendPostgres:
		return q.Postgres.Table
	case BackendKafka:
		return q.Kafka.Topic
	case BackendSQS:
		return q.SQS.QueueURL
	case BackendPubSub:
		return "projects/" + q.PubSub.Project + "/topics/" + q.PubSub.Topic
	default:
		return q.Cloudflare.QueueName
	}
}

type configFile struct {
	Service struct {
		Name            string   `yaml:"name"`
		HTTPPort        string   `yaml:"http_port"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
		CORSOrigins     []string `yaml:"cors_allowed_origins"`
	} `yaml:"service"`
	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		AddSource *bool  `yaml:"add_source"`
	} `yaml:"log"`
	Queue struct {
		Backend    string `yaml:"backend"`
		Timeout    string `yaml:"timeout"`
		Cloudflare struct {
			AccountID string `yaml:"account_id"`
			QueueName string `yaml:"queue_name"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"cloudflare"`
		Redis struct {
			Addr string `yaml:"addr"`
			List string `yaml:"list"`
		} `yaml:"redis"`
		Postgres struct {
			Table       string `yaml:"table"`
			AutoMigrate *bool  `yaml:"auto_migrate"`
		} `yaml:"postgres"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
		SQS struct {
			QueueURL string `yaml:"queue_url"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"sqs"`
		PubSub struct {
			Project         string `yaml:"project"`
			Topic           string `yaml:"topic"`
			CredentialsFile string `yaml:"credentials_file"`
			Endpoint        string `yaml:"endpoint"`
		} `yaml:"pubsub"`
	} `yaml:"queue"`
}

func defaults() Config {
	return Config{
		ServiceName:     "video-builder-web",
		HTTPPort:        "8080",
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"http://localhost:5173"},
		Log:             Log{Level: "info", Format: "json"},
		Queue: Queue{
			Backend:    BackendCloudflare,
			Timeout:    15 * time.Second,
			Cloudflare: Cloudflare{BaseURL: DefaultCloudflareBaseURL},
			Redis:      Redis{List: "vgate:jobs"},
			Postgres:   Postgres{Table: "video_jobs"},
		},
	}
}

// Load reads .env files, the optional YAML file and the environment, then
// validates the result. Every missing required key is reported at once.
func Load() (Config, error) {
	// Absent files are fine.
	_ = godotenv.Load(".env", ".env.local")

	path := envOrDefault("VGATE_CONFIG", "config.yaml")
	cfg := defaults()
	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeConfig, "config.Load", "read config file").WithField("path", path)
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return errors.WrapWithCode(err, errors.CodeConfig, "config.Load", "parse config file").WithField("path", path)
	}

	setString(&cfg.ServiceName, f.Service.Name)
	setString(&cfg.HTTPPort, f.Service.HTTPPort)
	if len(f.Service.CORSOrigins) > 0 {
		cfg.CORSOrigins = f.Service.CORSOrigins
	}
	if err := setDuration(&cfg.ShutdownTimeout, "service.shutdown_timeout", f.Service.ShutdownTimeout); err != nil {
		return err
	}

	setString(&cfg.Log.Level, f.Log.Level)
	setString(&cfg.Log.Format, f.Log.Format)
	if f.Log.AddSource != nil {
		cfg.Log.AddSource = *f.Log.AddSource
	}

	q := &cfg.Queue
	setString(&q.Backend, f.Queue.Backend)
	if err := setDuration(&q.Timeout, "queue.timeout", f.Queue.Timeout); err != nil {
		return err
	}
	setString(&q.Cloudflare.AccountID, f.Queue.Cloudflare.AccountID)
	setString(&q.Cloudflare.QueueName, f.Queue.Cloudflare.QueueName)
	setString(&q.Cloudflare.BaseURL, f.Queue.Cloudflare.BaseURL)
	setString(&q.Redis.Addr, f.Queue.Redis.Addr)
	setString(&q.Redis.List, f.Queue.Redis.List)
	setString(&q.Postgres.Table, f.Queue.Postgres.Table)
	if f.Queue.Postgres.AutoMigrate != nil {
		q.Postgres.AutoMigrate = *f.Queue.Postgres.AutoMigrate
	}
	if len(f.Queue.Kafka.Brokers) > 0 {
		q.Kafka.Brokers = f.Queue.Kafka.Brokers
	}
	setString(&q.Kafka.Topic, f.Queue.Kafka.Topic)
	setString(&q.SQS.QueueURL, f.Queue.SQS.QueueURL)
	setString(&q.SQS.Region, f.Queue.SQS.Region)
	setString(&q.SQS.Endpoint, f.Queue.SQS.Endpoint)
	setString(&q.PubSub.Project, f.Queue.PubSub.Project)
	setString(&q.PubSub.Topic, f.Queue.PubSub.Topic)
	setString(&q.PubSub.CredentialsFile, f.Queue.PubSub.CredentialsFile)
	setString(&q.PubSub.Endpoint, f.Queue.PubSub.Endpoint)
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.ServiceName = envOrDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envOrDefault("HTTP_PORT", cfg.HTTPPort)
	cfg.CORSOrigins = envCSV("CORS_ALLOWED_ORIGINS", cfg.CORSOrigins)

	cfg.Log.Level = envOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.AddSource = envBool("LOG_SOURCE", cfg.Log.AddSource)

	q := &cfg.Queue
	q.Backend = strings.ToLower(envOrDefault("QUEUE_BACKEND", q.Backend))

	q.Cloudflare.AccountID = envOrDefault("CF_ACCOUNT_ID", q.Cloudflare.AccountID)
	q.Cloudflare.QueueName = envOrDefault("CF_QUEUE_NAME", q.Cloudflare.QueueName)
	q.Cloudflare.APIToken = envOrDefault("CF_API_TOKEN", "")
	q.Cloudflare.BaseURL = strings.TrimRight(envOrDefault("CF_API_BASE_URL", q.Cloudflare.BaseURL), "/")

	q.Redis.Addr = envOrDefault("REDIS_ADDR", q.Redis.Addr)
	q.Redis.List = envOrDefault("REDIS_QUEUE", q.Redis.List)

	q.Postgres.DatabaseURL = envOrDefault("DATABASE_URL", "")
	q.Postgres.Table = envOrDefault("PG_QUEUE_TABLE", q.Postgres.Table)
	q.Postgres.AutoMigrate = envBool("PG_QUEUE_AUTO_MIGRATE", q.Postgres.AutoMigrate)

	q.Kafka.Brokers = envCSV("KAFKA_BROKERS", q.Kafka.Brokers)
	q.Kafka.Topic = envOrDefault("KAFKA_TOPIC", q.Kafka.Topic)

	q.SQS.QueueURL = envOrDefault("SQS_QUEUE_URL", q.SQS.QueueURL)
	q.SQS.Region = envOrDefault("AWS_REGION", q.SQS.Region)
	q.SQS.Endpoint = envOrDefault("SQS_ENDPOINT", q.SQS.Endpoint)

	q.PubSub.Project = envOrDefault("PUBSUB_PROJECT", q.PubSub.Project)
	q.PubSub.Topic = envOrDefault("PUBSUB_TOPIC", q.PubSub.Topic)
	q.PubSub.CredentialsFile = envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", q.PubSub.CredentialsFile)
	q.PubSub.Endpoint = envOrDefault("PUBSUB_ENDPOINT", q.PubSub.Endpoint)

	if err := setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", os.Getenv("SHUTDOWN_TIMEOUT")); err != nil {
		return err
	}
	return setDuration(&q.Timeout, "QUEUE_TIMEOUT", os.Getenv("QUEUE_TIMEOUT"))
}

// Validate reports every missing or invalid setting for the selected backend.
func (c Config) Validate() error {
	var missing []string
	need := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	q := c.Queue
	switch q.Backend {
	case BackendCloudflare:
		need("CF_ACCOUNT_ID", q.Cloudflare.AccountID)
		need("CF_QUEUE_NAME", q.Cloudflare.QueueName)
		need("CF_API_TOKEN", q.Cloudflare.APIToken)
	case BackendRedis:
		need("REDIS_ADDR", q.Redis.Addr)
		need("REDIS_QUEUE", q.Redis.List)
	case BackendPostgres:
		need("DATABASE_URL", q.Postgres.DatabaseURL)
		need("PG_QUEUE_TABLE", q.Postgres.Table)
	case BackendKafka:
		need("KAFKA_BROKERS", strings.Join(q.Kafka.Brokers, ","))
		need("KAFKA_TOPIC", q.Kafka.Topic)
	case BackendSQS:
		need("SQS_QUEUE_URL", q.SQS.QueueURL)
		need("AWS_REGION", q.SQS.Region)
	case BackendPubSub:
		need("PUBSUB_PROJECT", q.PubSub.Project)
		need("PUBSUB_TOPIC", q.PubSub.Topic)
	default:
		return errors.Newf(errors.CodeConfig, "unknown queue backend: %q", q.Backend).
			WithField("queue_backend", q.Backend)
	}

	if len(missing) > 0 {
		return errors.Newf(errors.CodeConfig, "missing required configuration: %s", strings.Join(missing, ", ")).
			WithField("missing", missing)
	}
	if q.Timeout <= 0 {
		return errors.Newf(errors.CodeConfig, "QUEUE_TIMEOUT must be positive, got %s", q.Timeout)
	}
	return nil
}

// Redacted returns loggable key/value pairs; credentials are never included.
func (c Config) Redacted() []any {
	return []any{
		"http_port", c.HTTPPort,
		"queue_backend", c.Queue.Backend,
		"queue", c.Queue.Name(),
		"queue_timeout", c.Queue.Timeout.String(),
		"cors_allowed_origins", strings.Join(c.CORSOrigins, ","),
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Newf(errors.CodeConfig, "invalid duration for %s: %q", key, raw).WithField("key", key)
	}
	*dst = d
	return nil
}

func envOrDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// envBool accepts what strconv.ParseBool accepts; anything else keeps def.
func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
