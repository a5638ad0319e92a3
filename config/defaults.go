// =============================================================================
// Serving controller default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Kubernetes: DefaultKubernetesConfig(),
		Serving:    DefaultServingConfig(),
		Docker:     DockerConfig{},
		Pypi:       PypiConfig{},
		Token:      DefaultTokenConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig returns the default database configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "servingd",
		Password:        "",
		Name:            "servingd",
		SSLMode:         "disable",
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultKubernetesConfig returns the default cluster access configuration.
func DefaultKubernetesConfig() KubernetesConfig {
	return KubernetesConfig{
		Namespace: "default",
	}
}

// DefaultServingConfig returns the default serving lifecycle configuration.
func DefaultServingConfig() ServingConfig {
	return ServingConfig{
		MaxTTL:      time.Hour,
		MinTTL:      time.Minute,
		GCInterval:  10 * time.Second,
		InstanceURI: "http://controller",
	}
}

// DefaultTokenConfig returns the default token issuer configuration.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		Issuer: "servingd",
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "servingd",
		SampleRate:   1.0,
	}
}
