package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unmarshalWithDefaults runs the same strict unmarshal pipeline Load uses,
// minus flag parsing and config file discovery.
func unmarshalWithDefaults(t *testing.T, overrides map[string]interface{}) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	)
	require.NoError(t, err)
	return &cfg
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := unmarshalWithDefaults(t, map[string]interface{}{
		"control.endpoint": "https://api.example.com/query",
	})

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())

	assert.Equal(t, 30*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 3, cfg.Query.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Query.RetryDelay)
	assert.Equal(t, "display", cfg.Query.DefaultPreset)
	assert.Equal(t, 30*time.Second, cfg.Cache.Freshness)
	assert.Equal(t, 256, cfg.Cache.CompiledSelectionLimit)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, "json", cfg.Observability.Logging.Format)
}

func TestDurationAndSliceDecodeHooks(t *testing.T) {
	cfg := unmarshalWithDefaults(t, map[string]interface{}{
		"control.endpoint": "https://api.example.com/query",
		"query.timeout":    "45s",
		"auth.scopes":      "openid, profile,query",
	})

	assert.Equal(t, 45*time.Second, cfg.Query.Timeout)
	assert.Equal(t, []string{"openid", "profile", "query"}, cfg.Auth.Scopes)
}

func TestValidateEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
		wantField string
	}{
		{
			name:      "no endpoint at all",
			overrides: map[string]interface{}{},
			wantField: "control.endpoint",
		},
		{
			name: "malformed control endpoint",
			overrides: map[string]interface{}{
				"control.endpoint": "not a url",
			},
			wantField: "control.endpoint",
		},
		{
			name: "unsupported scheme",
			overrides: map[string]interface{}{
				"control.endpoint": "ftp://api.example.com/query",
			},
			wantField: "control.endpoint",
		},
		{
			name: "tenant endpoint without database id",
			overrides: map[string]interface{}{
				"tenant.endpoint": "https://tenant.example.com/query",
			},
			wantField: "tenant.database_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := unmarshalWithDefaults(t, tt.overrides)
			result := cfg.Validate()
			require.True(t, result.HasErrors())

			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateEndpointWarnsOnPlainHTTP(t *testing.T) {
	cfg := unmarshalWithDefaults(t, map[string]interface{}{
		"control.endpoint": "http://api.example.com/query",
	})
	result := cfg.Validate()

	assert.False(t, result.HasErrors(), result.Error())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "control.endpoint", result.Warnings[0].Field)

	local := unmarshalWithDefaults(t, map[string]interface{}{
		"control.endpoint": "http://localhost:8080/query",
	})
	assert.Empty(t, local.Validate().Warnings)
}

func TestValidateAuth(t *testing.T) {
	base := map[string]interface{}{
		"control.endpoint": "https://api.example.com/query",
	}

	t.Run("issuer requires client id and a secret source", func(t *testing.T) {
		overrides := map[string]interface{}{
			"auth.issuer_url": "https://issuer.example.com",
		}
		for k, v := range base {
			overrides[k] = v
		}
		result := unmarshalWithDefaults(t, overrides).Validate()
		require.True(t, result.HasErrors())

		fields := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			fields = append(fields, e.Field)
		}
		assert.Contains(t, fields, "auth.client_id")
		assert.Contains(t, fields, "auth.client_secret")
	})

	t.Run("http issuer rejected off loopback", func(t *testing.T) {
		overrides := map[string]interface{}{
			"auth.issuer_url":    "http://issuer.example.com",
			"auth.client_id":     "cli",
			"auth.client_secret": "s3cret",
		}
		for k, v := range base {
			overrides[k] = v
		}
		result := unmarshalWithDefaults(t, overrides).Validate()
		require.True(t, result.HasErrors())
		assert.Equal(t, "auth.issuer_url", result.Errors[0].Field)
	})

	t.Run("secret prompt counts as a secret source", func(t *testing.T) {
		overrides := map[string]interface{}{
			"auth.issuer_url":           "https://issuer.example.com",
			"auth.client_id":            "cli",
			"auth.client_secret_prompt": true,
		}
		for k, v := range base {
			overrides[k] = v
		}
		result := unmarshalWithDefaults(t, overrides).Validate()
		assert.False(t, result.HasErrors(), result.Error())
	})
}

func TestValidateQuery(t *testing.T) {
	cfg := unmarshalWithDefaults(t, map[string]interface{}{
		"control.endpoint":         "https://api.example.com/query",
		"query.default_preset":     "everything",
		"query.retry_max_attempts": 0,
	})
	result := cfg.Validate()
	require.True(t, result.HasErrors())

	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "query.default_preset")
	assert.Contains(t, fields, "query.retry_max_attempts")
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "collector:4317",
		Protocol:    "grpc",
		Timeout:     10 * time.Second,
		Compression: "gzip",
		Headers:     map[string]string{"x-team": "platform"},
	}
	override := OTLPConfig{
		Endpoint: "traces-collector:4318",
		Protocol: "http/protobuf",
		Headers:  map[string]string{"x-signal": "traces"},
	}

	merged := mergeOTLPConfigs(base, override)
	assert.Equal(t, "traces-collector:4318", merged.Endpoint)
	assert.Equal(t, "http/protobuf", merged.Protocol)
	assert.Equal(t, 10*time.Second, merged.Timeout)
	assert.Equal(t, "gzip", merged.Compression)
	assert.Equal(t, map[string]string{"x-team": "platform", "x-signal": "traces"}, merged.Headers)
}

func TestGetTracesConfigFallsBackToGlobal(t *testing.T) {
	obs := ObservabilityConfig{OTLP: OTLPConfig{Endpoint: "collector:4317"}}
	assert.Equal(t, "collector:4317", obs.GetTracesConfig().Endpoint)

	obs.Traces = &OTLPConfig{Endpoint: "other:4317"}
	assert.Equal(t, "other:4317", obs.GetTracesConfig().Endpoint)
}

func TestReadSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  s3cret\n"), 0o600))

	secret, err := readSecretFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret)

	_, err = readSecretFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
