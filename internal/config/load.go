package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"gridbase/internal/dataerr"
	"gridbase/internal/selection"
)

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – used only for the interactive secret prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()

	// Defaults (lowest priority)
	setDefaults(v)

	// --- Flags ---
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// --- Config file ---
	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("gridbase")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/gridbase/")
		v.AddConfigPath("$HOME/.gridbase")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// --- Environment variables ---
	// Canonical keys: dot + snake_case
	// Env vars: GRIDBASE_QUERY_RETRY_MAX_ATTEMPTS
	v.SetEnvPrefix("GRIDBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Flags binding (highest normal priority) ---
	bindChangedFlagsToViper(v)

	// --- Client secret from file (explicit override) ---
	if v.GetString("auth.client_secret") == "" && v.GetString("auth.client_secret_file") != "" {
		secret, err := readSecretFile(v.GetString("auth.client_secret_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret file: %w", err)
		}
		if secret != "" {
			v.Set("auth.client_secret", secret)
		}
	}
	if v.GetString("auth.client_secret") == "" && v.GetBool("auth.client_secret_prompt") {
		secret, err := promptSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret: %w", err)
		}
		v.Set("auth.client_secret", secret)
	}

	// --- Unmarshal (strict) ---
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "version", "table", "preset", "row", "cursor", "limit":
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := pflag.CommandLine.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "Path to config file")

		// Endpoint flags
		pflag.String("control.endpoint", "", "Control-plane query endpoint URL")
		pflag.String("tenant.database_id", "", "Tenant database identifier")
		pflag.String("tenant.endpoint", "", "Tenant query endpoint URL")

		// Auth flags
		pflag.String("auth.issuer_url", "", "OIDC issuer URL (for discovery)")
		pflag.String("auth.client_id", "", "OAuth2 client ID")
		pflag.String("auth.client_secret", "", "OAuth2 client secret")
		pflag.String("auth.client_secret_file", "", "Path to file containing client secret (use @- for stdin)")
		pflag.Bool("auth.client_secret_prompt", false, "Prompt for client secret securely")
		pflag.StringSlice("auth.scopes", nil, "OAuth2 scopes to request")
		pflag.Bool("auth.skip_tls_verify", false, "Skip TLS verification for the issuer (dev only)")

		// Cache flags
		pflag.Duration("cache.freshness", 0, "How long cached data responses stay fresh (e.g. 30s)")
		pflag.Int("cache.compiled_selection_limit", 0, "Maximum compiled field selections kept per process")

		// Query flags
		pflag.Duration("query.timeout", 0, "Per-request timeout")
		pflag.Int("query.retry_max_attempts", 0, "Maximum attempts for retryable request failures")
		pflag.Duration("query.retry_delay", 0, "Delay between retry attempts")
		pflag.String("query.default_preset", "", "Default field selection preset (minimal, display, all, full)")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name reported to telemetry backends")
		pflag.String("observability.environment", "", "Deployment environment label")
		pflag.Bool("observability.metrics_enabled", false, "Enable OpenTelemetry metrics")
		pflag.Bool("observability.tracing_enabled", false, "Enable OpenTelemetry tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio (0.0-1.0)")
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
		pflag.String("observability.otlp.endpoint", "", "OTLP exporter endpoint")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Disable TLS for OTLP export")
	})
}

// setDefaults defines default values using canonical snake_case keys.
func setDefaults(v *viper.Viper) {
	// Endpoint defaults
	v.SetDefault("control.endpoint", "")
	v.SetDefault("tenant.database_id", "")
	v.SetDefault("tenant.endpoint", "")

	// Auth defaults
	v.SetDefault("auth.issuer_url", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.client_secret_file", "")
	v.SetDefault("auth.client_secret_prompt", false)
	v.SetDefault("auth.scopes", []string{})
	v.SetDefault("auth.skip_tls_verify", false)

	// Cache defaults
	v.SetDefault("cache.freshness", 30*time.Second)
	v.SetDefault("cache.compiled_selection_limit", 256)

	// Query defaults
	v.SetDefault("query.timeout", 30*time.Second)
	v.SetDefault("query.retry_max_attempts", dataerr.DefaultRetryAttempts)
	v.SetDefault("query.retry_delay", 250*time.Millisecond)
	v.SetDefault("query.default_preset", string(selection.PresetDisplay))

	// Observability defaults
	v.SetDefault("observability.service_name", "gridbase")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)

	// Global OTLP defaults
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptSecret prompts the user for the client secret without echoing to terminal.
func promptSecret() (string, error) {
	fmt.Print("Enter client secret: ")
	byteSecret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(byteSecret), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
