package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	ERP       ERPConfig
	Gateway   GatewayConfig
	HTTP      HTTPConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name    string
	Version string
	Port    string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// ERPConfig locates the ERP web services and the account used to call them.
type ERPConfig struct {
	BaseURL    string
	Company    string
	SOAPURL    string
	Username   string
	AccessKey  string
	Timeout    time.Duration
	EntitySets map[string]string // entity key -> entity set name overrides
}

type GatewayConfig struct {
	// PropagateUpstreamStatus reports the ERP's 4xx/5xx status instead of 500.
	PropagateUpstreamStatus bool
	SearchLimit             int
	SOAPResponseParser      string // regex, xml
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

type KafkaConfig struct {
	Brokers              []string
	CustomerCreatedTopic string
	ConsumerGroup        string
}

type DatabaseConfig struct {
	URL string
}

type TelemetryConfig struct {
	OTLPEndpoint  string
	SamplingRatio float64
}

// Load reads configuration with the following priority (highest first):
//  1. PORTAL_-prefixed environment variables (PORTAL_ERP_BASE_URL, ...)
//  2. the .env file named by ENV_FILE_PATH, or ./.env when present
//  3. config.yaml in the working directory or /etc/customer-portal
//  4. built-in defaults
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/customer-portal")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Version: v.GetString("app.version"),
			Port:    v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		ERP: ERPConfig{
			BaseURL:    v.GetString("erp.base_url"),
			Company:    v.GetString("erp.company"),
			SOAPURL:    v.GetString("erp.soap_url"),
			Username:   v.GetString("erp.username"),
			AccessKey:  v.GetString("erp.access_key"),
			Timeout:    v.GetDuration("erp.timeout"),
			EntitySets: v.GetStringMapString("erp.entity_sets"),
		},
		Gateway: GatewayConfig{
			PropagateUpstreamStatus: v.GetBool("gateway.propagate_upstream_status"),
			SearchLimit:             v.GetInt("gateway.search_limit"),
			SOAPResponseParser:      v.GetString("gateway.soap_response_parser"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:        v.GetDuration("http.read_timeout"),
			WriteTimeout:       v.GetDuration("http.write_timeout"),
			ShutdownTimeout:    v.GetDuration("http.shutdown_timeout"),
			CORSAllowedOrigins: list(v, "http.cors_allowed_origins"),
			RateLimitRPS:       v.GetFloat64("http.rate_limit_rps"),
			RateLimitBurst:     v.GetInt("http.rate_limit_burst"),
		},
		Kafka: KafkaConfig{
			Brokers:              list(v, "kafka.brokers"),
			CustomerCreatedTopic: v.GetString("kafka.customer_created_topic"),
			ConsumerGroup:        v.GetString("kafka.consumer_group"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  v.GetString("telemetry.otlp_endpoint"),
			SamplingRatio: v.GetFloat64("telemetry.sampling_ratio"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "customer-portal-gateway")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("erp.timeout", 15*time.Second)
	v.SetDefault("gateway.propagate_upstream_status", false)
	v.SetDefault("gateway.search_limit", 10)
	v.SetDefault("gateway.soap_response_parser", "regex")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("http.rate_limit_rps", 50.0)
	v.SetDefault("http.rate_limit_burst", 100)
	v.SetDefault("kafka.customer_created_topic", "customer.created")
	v.SetDefault("kafka.consumer_group", "registration-worker")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
}

// list reads a comma separated value from env or a YAML sequence.
func list(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case string:
		raw = strings.Split(val, ",")
	default:
		raw = v.GetStringSlice(key)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func loadDotEnv() error {
	if path := os.Getenv("ENV_FILE_PATH"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// ValidateGateway checks the settings the gateway cannot start without.
func (c *Config) ValidateGateway() error {
	var missing []string
	if c.ERP.BaseURL == "" {
		missing = append(missing, "erp.base_url")
	}
	if c.ERP.SOAPURL == "" {
		missing = append(missing, "erp.soap_url")
	}
	if c.ERP.Username == "" {
		missing = append(missing, "erp.username")
	}
	if c.ERP.AccessKey == "" {
		missing = append(missing, "erp.access_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.ERP.Timeout <= 0 {
		return errors.New("erp.timeout must be positive")
	}
	if c.Gateway.SearchLimit <= 0 || c.Gateway.SearchLimit > 100 {
		return fmt.Errorf("gateway.search_limit must be between 1 and 100, got %d", c.Gateway.SearchLimit)
	}
	switch c.Gateway.SOAPResponseParser {
	case "regex", "xml":
	default:
		return fmt.Errorf("gateway.soap_response_parser must be regex or xml, got %q", c.Gateway.SOAPResponseParser)
	}
	return nil
}

// ValidateWorker checks the settings the registration worker needs.
func (c *Config) ValidateWorker() error {
	var missing []string
	if len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "kafka.brokers")
	}
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
