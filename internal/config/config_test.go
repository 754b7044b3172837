package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp isolates Load from any config.yaml or .env in the package dir.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("ENV_FILE_PATH", "")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "customer-portal-gateway", cfg.App.Name)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 15*time.Second, cfg.ERP.Timeout)
		assert.Equal(t, 10, cfg.Gateway.SearchLimit)
		assert.Equal(t, "regex", cfg.Gateway.SOAPResponseParser)
		assert.False(t, cfg.Gateway.PropagateUpstreamStatus)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSAllowedOrigins)
		assert.Equal(t, "customer.created", cfg.Kafka.CustomerCreatedTopic)
		assert.Empty(t, cfg.Kafka.Brokers)
	})

	t.Run("loads values from environment variables with PORTAL prefix", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("ENV_FILE_PATH", "")
		t.Setenv("PORTAL_APP_PORT", "9000")
		t.Setenv("PORTAL_ERP_BASE_URL", "https://erp.example.com/ODataV4")
		t.Setenv("PORTAL_ERP_COMPANY", "CRONUS")
		t.Setenv("PORTAL_ERP_TIMEOUT", "3s")
		t.Setenv("PORTAL_GATEWAY_PROPAGATE_UPSTREAM_STATUS", "true")
		t.Setenv("PORTAL_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
		t.Setenv("PORTAL_HTTP_CORS_ALLOWED_ORIGINS", "https://portal.example.com,https://admin.example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "https://erp.example.com/ODataV4", cfg.ERP.BaseURL)
		assert.Equal(t, "CRONUS", cfg.ERP.Company)
		assert.Equal(t, 3*time.Second, cfg.ERP.Timeout)
		assert.True(t, cfg.Gateway.PropagateUpstreamStatus)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, []string{"https://portal.example.com", "https://admin.example.com"}, cfg.HTTP.CORSAllowedOrigins)
	})

	t.Run("reads env file named by ENV_FILE_PATH", func(t *testing.T) {
		dir := chdirTemp(t)
		envFile := filepath.Join(dir, "portal.env")
		require.NoError(t, os.WriteFile(envFile, []byte("PORTAL_ERP_USERNAME=svc-portal\nPORTAL_ERP_ACCESS_KEY=abc123\n"), 0o600))
		t.Setenv("ENV_FILE_PATH", envFile)
		// godotenv never overrides existing variables; t.Setenv restores these afterwards.
		t.Setenv("PORTAL_ERP_USERNAME", "")
		t.Setenv("PORTAL_ERP_ACCESS_KEY", "")
		require.NoError(t, os.Unsetenv("PORTAL_ERP_USERNAME"))
		require.NoError(t, os.Unsetenv("PORTAL_ERP_ACCESS_KEY"))

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "svc-portal", cfg.ERP.Username)
		assert.Equal(t, "abc123", cfg.ERP.AccessKey)
	})

	t.Run("reads config.yaml", func(t *testing.T) {
		dir := chdirTemp(t)
		t.Setenv("ENV_FILE_PATH", "")
		yaml := `
erp:
  base_url: https://erp.internal/ODataV4
  entity_sets:
    items: ItemCard
http:
  cors_allowed_origins:
    - https://portal.example.com
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "https://erp.internal/ODataV4", cfg.ERP.BaseURL)
		assert.Equal(t, map[string]string{"items": "ItemCard"}, cfg.ERP.EntitySets)
		assert.Equal(t, []string{"https://portal.example.com"}, cfg.HTTP.CORSAllowedOrigins)
	})

	t.Run("missing env file is an error", func(t *testing.T) {
		chdirTemp(t)
		t.Setenv("ENV_FILE_PATH", "/nonexistent/portal.env")

		_, err := Load()
		assert.Error(t, err)
	})
}

func validGatewayConfig() *Config {
	return &Config{
		ERP: ERPConfig{
			BaseURL:   "https://erp.example.com",
			SOAPURL:   "https://erp.example.com/WS/CRONUS/Codeunit/CustomerService",
			Username:  "svc",
			AccessKey: "key",
			Timeout:   time.Second,
		},
		Gateway: GatewayConfig{SearchLimit: 10, SOAPResponseParser: "regex"},
	}
}

func TestValidateGateway(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validGatewayConfig().ValidateGateway())
	})

	t.Run("refuses to start without credentials", func(t *testing.T) {
		cfg := validGatewayConfig()
		cfg.ERP.Username = ""
		cfg.ERP.AccessKey = ""

		err := cfg.ValidateGateway()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "erp.username")
		assert.Contains(t, err.Error(), "erp.access_key")
	})

	t.Run("search limit bounds", func(t *testing.T) {
		cfg := validGatewayConfig()
		cfg.Gateway.SearchLimit = 500
		assert.Error(t, cfg.ValidateGateway())
	})

	t.Run("unknown soap parser", func(t *testing.T) {
		cfg := validGatewayConfig()
		cfg.Gateway.SOAPResponseParser = "dom"
		assert.Error(t, cfg.ValidateGateway())
	})
}

func TestValidateWorker(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
	assert.Contains(t, err.Error(), "database.url")

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Database.URL = "postgres://localhost/portal"
	assert.NoError(t, cfg.ValidateWorker())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(LogConfig{Level: "bogus", Format: "text"}, &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
