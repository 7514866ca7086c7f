package branchauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/branchauth/jwt"
	"github.com/MrEthical07/branchauth/pin"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the complete engine configuration. Build a Config with [DefaultConfig] or
// [LoadConfig] and treat it as immutable once handed to a [Builder].
type Config struct {
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Remote  RemoteConfig  `yaml:"remote"`
	PIN     PINConfig     `yaml:"pin"`
	RefData RefDataConfig `yaml:"refdata"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the local session token.
type SessionConfig struct {
	Secret        string        `yaml:"secret"         env:"BRANCHAUTH_SESSION_SECRET"`
	SigningMethod string        `yaml:"signing_method" env:"BRANCHAUTH_SESSION_SIGNING_METHOD" env-default:"hs256"`
	Issuer        string        `yaml:"issuer"         env:"BRANCHAUTH_SESSION_ISSUER"`
	TTL           time.Duration `yaml:"ttl"            env:"BRANCHAUTH_SESSION_TTL"            env-default:"1h"`
	// AutoSelectSingleBranch selects the only branch of a user who has exactly one at login.
	AutoSelectSingleBranch bool `yaml:"auto_select_single_branch" env:"BRANCHAUTH_SESSION_AUTO_SELECT_SINGLE_BRANCH"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// StoreConfig selects and configures the persistent store backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"        env:"BRANCHAUTH_STORE_BACKEND"        env-default:"file"`
	FilePath      string `yaml:"file_path"      env:"BRANCHAUTH_STORE_FILE_PATH"      env-default:"branchauth.json"`
	RedisAddr     string `yaml:"redis_addr"     env:"BRANCHAUTH_STORE_REDIS_ADDR"     env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"BRANCHAUTH_STORE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db"       env:"BRANCHAUTH_STORE_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix"   env:"BRANCHAUTH_STORE_REDIS_PREFIX"   env-default:"ba"`
	PostgresDSN   string `yaml:"postgres_dsn"   env:"BRANCHAUTH_STORE_POSTGRES_DSN"`
	PostgresTable string `yaml:"postgres_table" env:"BRANCHAUTH_STORE_POSTGRES_TABLE" env-default:"branchauth_kv"`
}

/*
====================================
REMOTE CONFIG
====================================
*/

// RemoteConfig locates the remote collaborator.
type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url"    env:"BRANCHAUTH_REMOTE_BASE_URL"`
	LoginPath  string        `yaml:"login_path"  env:"BRANCHAUTH_REMOTE_LOGIN_PATH"  env-default:"auth/login"`
	CheckPath  string        `yaml:"check_path"  env:"BRANCHAUTH_REMOTE_CHECK_PATH"  env-default:"auth/check"`
	ClientName string        `yaml:"client_name" env:"BRANCHAUTH_REMOTE_CLIENT_NAME" env-default:"branchauth"`
	Timeout    time.Duration `yaml:"timeout"     env:"BRANCHAUTH_REMOTE_TIMEOUT"     env-default:"15s"`
}

/*
====================================
PIN CONFIG
====================================
*/

// PINConfig holds the Argon2id cost parameters for the local PIN and the failed-unlock limit.
// MaxAttempts consecutive failures inside AttemptWindow end the session; 0 disables the limit.
type PINConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"   env:"BRANCHAUTH_PIN_MAX_ATTEMPTS"   env-default:"5"`
	AttemptWindow time.Duration `yaml:"attempt_window" env:"BRANCHAUTH_PIN_ATTEMPT_WINDOW" env-default:"15m"`

	Memory      uint32 `yaml:"memory"      env:"BRANCHAUTH_PIN_MEMORY"      env-default:"19456"` // in KB
	Time        uint32 `yaml:"time"        env:"BRANCHAUTH_PIN_TIME"        env-default:"2"`
	Parallelism uint8  `yaml:"parallelism" env:"BRANCHAUTH_PIN_PARALLELISM" env-default:"1"`
	SaltLength  uint32 `yaml:"salt_length" env:"BRANCHAUTH_PIN_SALT_LENGTH" env-default:"16"`
	KeyLength   uint32 `yaml:"key_length"  env:"BRANCHAUTH_PIN_KEY_LENGTH"  env-default:"32"`
}

/*
====================================
REFERENCE DATA CONFIG
====================================
*/

// RefDataConfig configures the reference list cache.
type RefDataConfig struct {
	Endpoint string        `yaml:"endpoint" env:"BRANCHAUTH_REFDATA_ENDPOINT" env-default:"reference"`
	TTL      time.Duration `yaml:"ttl"      env:"BRANCHAUTH_REFDATA_TTL"      env-default:"15m"`
	Kinds    []string      `yaml:"kinds"    env:"BRANCHAUTH_REFDATA_KINDS"    env-separator:","`
	// Schedule is a cron spec for background refresh in long-running processes.
	Schedule string `yaml:"schedule" env:"BRANCHAUTH_REFDATA_SCHEDULE" env-default:"@every 10m"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"      env:"BRANCHAUTH_AUDIT_ENABLED"`
	BufferSize int  `yaml:"buffer_size"  env:"BRANCHAUTH_AUDIT_BUFFER_SIZE"  env-default:"1024"`
	DropIfFull bool `yaml:"drop_if_full" env:"BRANCHAUTH_AUDIT_DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"                   env:"BRANCHAUTH_METRICS_ENABLED"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" env:"BRANCHAUTH_METRICS_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults. Session.Secret and Remote.BaseURL are left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			SigningMethod:          string(jwt.MethodHS256),
			TTL:                    time.Hour,
			AutoSelectSingleBranch: true,
		},
		Store: StoreConfig{
			Backend:       BackendFile,
			FilePath:      "branchauth.json",
			RedisAddr:     "localhost:6379",
			RedisPrefix:   "ba",
			PostgresTable: "branchauth_kv",
		},
		Remote: RemoteConfig{
			LoginPath:  "auth/login",
			CheckPath:  "auth/check",
			ClientName: "branchauth",
			Timeout:    15 * time.Second,
		},
		PIN: PINConfig{
			MaxAttempts:   5,
			AttemptWindow: 15 * time.Minute,
			Memory:        19 * 1024,
			Time:          2,
			Parallelism:   1,
			SaltLength:    16,
			KeyLength:     32,
		},
		RefData: RefDataConfig{
			Endpoint: "reference",
			TTL:      15 * time.Minute,
			Schedule: "@every 10m",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// LoadConfig reads path (YAML) on top of the defaults, applies BRANCHAUTH_* environment
// overrides, and validates the result. An empty path reads the environment only.
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for callers that layer further overrides.
func ReadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RefData.Kinds != nil {
		out.RefData.Kinds = append([]string(nil), cfg.RefData.Kinds...)
	}
	return out
}

func (c PINConfig) lockoutConfig() pin.LockoutConfig {
	return pin.LockoutConfig{Threshold: c.MaxAttempts, Window: c.AttemptWindow}
}

func (c PINConfig) hashConfig() pin.HashConfig {
	return pin.HashConfig{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Session
	if len(c.Session.Secret) < jwt.MinSecretLength {
		return fmt.Errorf("Session Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	switch jwt.SigningMethod(strings.ToLower(c.Session.SigningMethod)) {
	case jwt.MethodHS256, jwt.MethodHS384, jwt.MethodHS512:
	default:
		return errors.New("Session SigningMethod must be hs256, hs384 or hs512")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Store
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.FilePath == "" {
			return errors.New("Store FilePath is required for the file backend")
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("Store RedisDB must be >= 0")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("Store PostgresDSN is required for the postgres backend")
		}
		if c.Store.PostgresTable == "" {
			return errors.New("Store PostgresTable is required for the postgres backend")
		}
	default:
		return fmt.Errorf("Store Backend %q is not supported", c.Store.Backend)
	}

	// Remote
	if c.Remote.BaseURL == "" {
		return errors.New("Remote BaseURL is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("Remote BaseURL must be an absolute http(s) URL")
	}
	if c.Remote.LoginPath == "" || c.Remote.CheckPath == "" {
		return errors.New("Remote LoginPath and CheckPath are required")
	}
	if c.Remote.Timeout < 0 {
		return errors.New("Remote Timeout must be >= 0")
	}

	// PIN
	if err := c.PIN.hashConfig().Validate(); err != nil {
		return err
	}
	if c.PIN.MaxAttempts < 0 || c.PIN.AttemptWindow < 0 {
		return errors.New("PIN MaxAttempts and AttemptWindow must be >= 0")
	}

	// Reference data
	if c.RefData.Endpoint == "" {
		return errors.New("RefData Endpoint is required")
	}
	if c.RefData.TTL <= 0 {
		return errors.New("RefData TTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
