package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type GatewayConfig struct {
	Esewa   EsewaConfig   `mapstructure:"esewa"`
	Khalti  KhaltiConfig  `mapstructure:"khalti"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`
}

type EsewaConfig struct {
	ProductCode string `mapstructure:"product_code"`
	SecretKey   string `mapstructure:"secret_key"`
	TestMode    bool   `mapstructure:"test_mode"`
}

type KhaltiConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	TestMode  bool   `mapstructure:"test_mode"`
}

// RetryConfig bounds the retries applied to Khalti initiation calls on
// transport failures. Verification is never retried.
type RetryConfig struct {
	MaxAttempts  uint          `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SAJILOPAY")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/sajilopay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}
	if c.Gateway.Retry.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("gateway.retry.max_attempts must be at least 1"))
	}

	// Production environment checks. Sandbox runs tolerate missing keys
	// so local bring-up does not require real credentials.
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Gateway.Esewa.SecretKey == "" {
			errs = append(errs, fmt.Errorf("gateway.esewa.secret_key required in production"))
		}
		if c.Gateway.Esewa.ProductCode == "" {
			errs = append(errs, fmt.Errorf("gateway.esewa.product_code required in production"))
		}
		if c.Gateway.Khalti.SecretKey == "" {
			errs = append(errs, fmt.Errorf("gateway.khalti.secret_key required in production"))
		}
		if c.Gateway.Esewa.TestMode || c.Gateway.Khalti.TestMode {
			errs = append(errs, fmt.Errorf("gateway test_mode must be disabled in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Gateway defaults: both providers in sandbox mode
	v.SetDefault("gateway.esewa.product_code", "EPAYTEST")
	v.SetDefault("gateway.esewa.test_mode", true)
	v.SetDefault("gateway.khalti.test_mode", true)
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.retry.max_attempts", 2)
	v.SetDefault("gateway.retry.initial_delay", "500ms")
	v.SetDefault("gateway.retry.max_delay", "2s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "sajilopay-1")
}
