package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Auth modes accepted by the Lead System write endpoint.
const (
	AuthModeHeaders = "headers"
	AuthModeBasic   = "basic"
)

// Queue drivers for reconciliation jobs.
const (
	QueueDriverMemory    = "memory"
	QueueDriverJetStream = "jetstream"
)

// Config holds all configuration for the service. It is built once at startup
// and handed to components explicitly.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"readTimeout"`
		WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	} `mapstructure:"server"`
	Health struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"health"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	Database struct {
		DSN         string `mapstructure:"dsn"`
		AutoMigrate bool   `mapstructure:"autoMigrate"`
	} `mapstructure:"database"`
	LeadSystem   LeadSystemConfig   `mapstructure:"leadSystem"`
	Notification NotificationConfig `mapstructure:"notification"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Admin        AdminConfig        `mapstructure:"admin"`
	Queue        QueueConfig        `mapstructure:"queue"`
	WorkerPools  struct {
		Reconcile WorkerPoolConfig `mapstructure:"reconcile"`
	} `mapstructure:"workerPools"`
}

// LeadSystemConfig holds the Lead System endpoints and credentials.
type LeadSystemConfig struct {
	BaseURL          string        `mapstructure:"baseURL"`
	APIID            string        `mapstructure:"apiID"`
	APIKey           string        `mapstructure:"apiKey"`
	AuthMode         string        `mapstructure:"authMode"` // headers | basic
	IngressLeadsPath string        `mapstructure:"ingressLeadsPath"`
	EgressLeadsPath  string        `mapstructure:"egressLeadsPath"`
	DocumentsPath    string        `mapstructure:"documentsPath"`
	SearchColumns    string        `mapstructure:"searchColumns"`
	MaxSearchPages   int           `mapstructure:"maxSearchPages"`
	Timeout          time.Duration `mapstructure:"timeout"` // per HTTP call
}

// NotificationConfig holds the notification relay endpoint.
type NotificationConfig struct {
	URL           string        `mapstructure:"url"`
	Authorization string        `mapstructure:"authorization"` // full Authorization header value
	FlowType      string        `mapstructure:"flowType"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// UploadConfig bounds what the intake form accepts.
type UploadConfig struct {
	Dir          string   `mapstructure:"dir"`
	MaxFiles     int      `mapstructure:"maxFiles"`
	MaxFileMB    int      `mapstructure:"maxFileMB"`
	AllowedMimes []string `mapstructure:"allowedMimes"`
}

// MaxFileBytes returns the per-file size limit in bytes.
func (u UploadConfig) MaxFileBytes() int64 {
	return int64(u.MaxFileMB) * 1024 * 1024
}

// AdminConfig holds the operator listing credentials.
type AdminConfig struct {
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	ListLimit int    `mapstructure:"listLimit"`
}

// QueueConfig selects how reconciliation jobs travel from the HTTP handler to the worker.
type QueueConfig struct {
	Driver     string        `mapstructure:"driver"` // memory | jetstream
	NatsURL    string        `mapstructure:"natsURL"`
	Stream     string        `mapstructure:"stream"`
	Subject    string        `mapstructure:"subject"`
	Consumer   string        `mapstructure:"consumer"`
	AckWait    time.Duration `mapstructure:"ackWait"`
	MaxDeliver int           `mapstructure:"maxDeliver"`
	MaxAgeDays int           `mapstructure:"maxAgeDays"`
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Max tasks blocked waiting for a worker
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// .env is optional, real environment wins
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("health.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("database.autoMigrate", true)

	v.SetDefault("leadSystem.authMode", AuthModeHeaders)
	v.SetDefault("leadSystem.ingressLeadsPath", "/api/ingress/leads")
	v.SetDefault("leadSystem.egressLeadsPath", "/api/egress/leads")
	v.SetDefault("leadSystem.documentsPath", "/api/ingress/documents/upload/lead")
	v.SetDefault("leadSystem.searchColumns", "ssn,lead_id,first_name,last_name,email,phone")
	v.SetDefault("leadSystem.maxSearchPages", 3)
	v.SetDefault("leadSystem.timeout", 25*time.Second)

	v.SetDefault("notification.flowType", "customer")
	v.SetDefault("notification.timeout", 25*time.Second)

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.maxFiles", 10)
	v.SetDefault("upload.maxFileMB", 10)

	v.SetDefault("admin.listLimit", 200)

	v.SetDefault("queue.driver", QueueDriverMemory)
	v.SetDefault("queue.stream", "INTAKE_RECONCILE")
	v.SetDefault("queue.subject", "v1.intake.reconcile")
	v.SetDefault("queue.consumer", "intake_reconcile_worker")
	v.SetDefault("queue.ackWait", 30*time.Second)
	v.SetDefault("queue.maxDeliver", 3)
	v.SetDefault("queue.maxAgeDays", 7)

	v.SetDefault("workerPools.reconcile.poolSize", 8)
	v.SetDefault("workerPools.reconcile.queueSize", 1000)
	v.SetDefault("workerPools.reconcile.expiryTime", time.Minute)

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.doc-intake-relay")
	v.AddConfigPath("/etc/doc-intake-relay")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, env vars cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	// Legacy flat env names used by existing deployments
	for env, key := range map[string]string{
		"POSTGRES_DSN":           "database.dsn",
		"LOG_LEVEL":              "logLevel",
		"PORT":                   "server.port",
		"NATS_URL":               "queue.natsURL",
		"TLD_BASE_URL":           "leadSystem.baseURL",
		"TLD_API_ID":             "leadSystem.apiID",
		"TLD_API_KEY":            "leadSystem.apiKey",
		"TLD_AUTH_MODE":          "leadSystem.authMode",
		"TLD_INGRESS_LEADS_PATH": "leadSystem.ingressLeadsPath",
		"TLD_EGRESS_LEADS_PATH":  "leadSystem.egressLeadsPath",
		"CONNEX_TRIGGER_URL":     "notification.url",
		"CONNEX_BASIC_AUTH":      "notification.authorization",
		"UPLOAD_DIR":             "upload.dir",
		"MAX_FILE_MB":            "upload.maxFileMB",
		"ADMIN_USER":             "admin.user",
		"ADMIN_PASS":             "admin.pass",
	} {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}
	if ms := os.Getenv("HTTP_TIMEOUT_MS"); ms != "" {
		if d, err := time.ParseDuration(ms + "ms"); err == nil {
			v.Set("leadSystem.timeout", d)
			v.Set("notification.timeout", d)
		}
	}
	if mimes := os.Getenv("ALLOWED_MIMES"); mimes != "" {
		v.Set("upload.allowedMimes", splitList(mimes))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.LeadSystem.AuthMode = strings.ToLower(strings.TrimSpace(config.LeadSystem.AuthMode))
	config.Queue.Driver = strings.ToLower(strings.TrimSpace(config.Queue.Driver))
	config.Upload.AllowedMimes = normalizeList(config.Upload.AllowedMimes)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configuration the service cannot run with.
func (c *Config) Validate() error {
	switch c.LeadSystem.AuthMode {
	case AuthModeHeaders, AuthModeBasic:
	default:
		return fmt.Errorf("invalid leadSystem.authMode %q (want %q or %q)", c.LeadSystem.AuthMode, AuthModeHeaders, AuthModeBasic)
	}
	switch c.Queue.Driver {
	case QueueDriverMemory:
	case QueueDriverJetStream:
		if c.Queue.NatsURL == "" {
			return fmt.Errorf("queue.natsURL is required for the %s driver", QueueDriverJetStream)
		}
	default:
		return fmt.Errorf("invalid queue.driver %q", c.Queue.Driver)
	}
	if c.LeadSystem.MaxSearchPages <= 0 {
		return fmt.Errorf("leadSystem.maxSearchPages must be positive")
	}
	if c.Upload.MaxFiles <= 0 || c.Upload.MaxFileMB <= 0 {
		return fmt.Errorf("upload.maxFiles and upload.maxFileMB must be positive")
	}
	return nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}

func splitList(s string) []string {
	return normalizeList(strings.Split(s, ","))
}

// normalizeList trims entries and drops empty ones. A single comma separated
// entry (as produced by env vars) is split.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
