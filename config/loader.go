// =============================================================================
// Serving controller configuration loader
// =============================================================================
// Unified configuration loading: defaults, then a YAML file, then
// environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("servingd.yaml").
//	    WithEnvPrefix("SERVINGD").
//	    Load()
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete servingd configuration.
type Config struct {
	// Server holds ports and shutdown behavior of the controller process.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Database holds the instance ledger and catalog database settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Kubernetes holds cluster access settings.
	Kubernetes KubernetesConfig `yaml:"kubernetes" env:"KUBERNETES"`

	// Serving holds the on-demand serving lifecycle settings.
	Serving ServingConfig `yaml:"serving" env:"SERVING"`

	// Docker holds the private registry override.
	Docker DockerConfig `yaml:"docker" env:"DOCKER"`

	// Pypi holds the package index mirror injected into serving workloads.
	Pypi PypiConfig `yaml:"pypi" env:"PYPI"`

	// Token holds the scoped serving token settings.
	Token TokenConfig `yaml:"token" env:"TOKEN"`

	// Log holds logger settings.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry holds OpenTelemetry settings.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the controller process.
type ServerConfig struct {
	// Metrics/health listen port
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig configures the ledger/catalog database.
type DatabaseConfig struct {
	// Driver type: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// Host
	Host string `yaml:"host" env:"HOST"`
	// Port
	Port int `yaml:"port" env:"PORT"`
	// Username
	User string `yaml:"user" env:"USER"`
	// Password
	Password string `yaml:"password" env:"PASSWORD"`
	// Database name, or file path for sqlite
	Name string `yaml:"name" env:"NAME"`
	// SSL mode (postgres only)
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Max open connections
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// Max idle connections
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// Connection max lifetime
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// KubernetesConfig configures cluster access.
type KubernetesConfig struct {
	// Namespace hosting serving workloads
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Path to a kubeconfig file; empty means in-cluster config
	Kubeconfig string `yaml:"kubeconfig" env:"KUBECONFIG"`
}

// ServingConfig configures the on-demand serving lifecycle.
type ServingConfig struct {
	// Max time-to-live since last visit before forced deletion
	MaxTTL time.Duration `yaml:"max_ttl" env:"MAX_TTL"`
	// Min time-to-live since last visit before eviction under pressure
	MinTTL time.Duration `yaml:"min_ttl" env:"MIN_TTL"`
	// Garbage collection interval
	GCInterval time.Duration `yaml:"gc_interval" env:"GC_INTERVAL"`
	// Controller instance URI injected into workloads
	InstanceURI string `yaml:"instance_uri" env:"INSTANCE_URI"`
}

// DockerConfig configures image resolution.
type DockerConfig struct {
	// Private registry; when set, workload images are rewritten through it
	Registry string `yaml:"registry" env:"REGISTRY"`
}

// PypiConfig configures the package index mirror for serving workloads.
type PypiConfig struct {
	IndexURL      string `yaml:"index_url" env:"INDEX_URL"`
	ExtraIndexURL string `yaml:"extra_index_url" env:"EXTRA_INDEX_URL"`
	TrustedHost   string `yaml:"trusted_host" env:"TRUSTED_HOST"`
}

// TokenConfig configures the scoped serving token issuer.
type TokenConfig struct {
	// HS256 signing secret
	Secret string `yaml:"secret" env:"SECRET"`
	// Token issuer claim
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// Token lifetime; zero means no expiry claim
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader loads configuration in priority order:
// defaults, then YAML file, then environment variables.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SERVINGD",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// missing file falls back to defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Serving.MinTTL < 0 || c.Serving.MaxTTL < 0 {
		errs = append(errs, "serving TTLs must not be negative")
	}
	if c.Serving.MaxTTL > 0 && c.Serving.MinTTL > c.Serving.MaxTTL {
		errs = append(errs, "serving min_ttl must not exceed max_ttl")
	}
	if c.Serving.GCInterval <= 0 {
		errs = append(errs, "serving gc_interval must be positive")
	}
	if c.Kubernetes.Namespace == "" {
		errs = append(errs, "kubernetes namespace must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
