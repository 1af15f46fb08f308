package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load loads configuration from defaults, file, and environment.
// Resolution order (highest priority last):
// 1. Defaults
// 2. Config file
// 3. Environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) error {
	return loadStructFromEnv(reflect.ValueOf(cfg).Elem())
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := loadStructFromEnv(field); err != nil {
					return err
				}
			}
			continue
		}

		if value := os.Getenv(envTag); value != "" {
			if err := setField(field, value); err != nil {
				return fmt.Errorf("setting %s: %w", envTag, err)
			}
		}
	}

	return nil
}

// setField sets a struct field from a string value.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parsing duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing int: %w", err)
			}
			field.SetInt(n)
		}
	case reflect.Int32:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("parsing int32: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parsing bool: %w", err)
		}
		field.SetBool(b)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parsing float64: %w", err)
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type: %s", field.Type().Elem().Kind())
		}
		if value == "" {
			field.Set(reflect.ValueOf([]string{}))
			return nil
		}
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// configFilePath returns the path to the config file.
func configFilePath() string {
	if path := os.Getenv("LATERAL_CONFIG_PATH"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".lateral", "config.json"),
		filepath.Join(home, ".lateral.json"),
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Save saves configuration to a file.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// GetEnvDocs returns documentation for all environment variables.
func GetEnvDocs() map[string]string {
	return map[string]string{
		"LATERAL_MAX_TRACKED_SESSIONS":       "Maximum tracked sessions (default: 1000)",
		"LATERAL_SESSION_IDLE_EXPIRY":        "Idle session expiry (default: 30m)",
		"LATERAL_MAX_PARALLEL_SESSIONS":      "Maximum sessions per parallel group (default: 20)",
		"LATERAL_EXECUTION_TIMEOUT":          "Default execution timeout (default: 5m)",
		"LATERAL_EXECUTION_TIMEOUT_FAST":     "Fast-technique execution timeout (default: 30s)",
		"LATERAL_EXECUTION_TIMEOUT_EXTENDED": "Extended-technique execution timeout (default: 15m)",
		"LATERAL_STALE_THRESHOLD":            "Progress-stale threshold (default: 2m)",
		"LATERAL_DEPENDENCY_WAIT":            "Dependency-wait timer (default: 3m)",
		"LATERAL_GATEKEEPER_LEVEL":           "Completion enforcement level: none, lenient, standard, strict (default: standard)",
		"LATERAL_GATEKEEPER_MIN_COMPLETION":  "Minimum overallProgress for strict enforcement; lenient warns below it (default: 0.60)",
		"LATERAL_GATEKEEPER_REQUIRE_CONFIRMATION": "overallProgress below which standard enforcement asks for confirmation (default: 0.80)",
		"LATERAL_GATEKEEPER_CRITICAL_TECHNIQUES": "Comma-separated list of techniques that always require confirmation",
		"LATERAL_TELEMETRY_ENABLED":          "Enable telemetry (default: true)",
		"LATERAL_LOG_LEVEL":                  "Log level: debug, info, warn, error, fatal (default: info)",
		"LATERAL_TELEMETRY_STORAGE":          "Telemetry storage backend: memory or sqlite (default: memory)",
		"LATERAL_TELEMETRY_PRIVACY_MODE":     "Redact session content from telemetry events (default: true)",
		"LATERAL_TELEMETRY_BATCH_SIZE":       "Telemetry flush batch size (default: 50)",
		"LATERAL_TELEMETRY_FLUSH_INTERVAL":   "Telemetry flush interval (default: 10s)",
		"LATERAL_STORAGE_DRIVER":             "Storage driver: sqlite or memory (default: sqlite)",
		"LATERAL_STORAGE_DSN":                "Storage DSN/connection string",
		"LATERAL_CONFIG_PATH":                "Path to config file",
	}
}

// PrintEnvDocs prints environment variable documentation.
func PrintEnvDocs() {
	fmt.Println("Lateral Engine Environment Variables")
	fmt.Println("=====================================")
	fmt.Println()

	categories := map[string][]string{
		"Session":    {},
		"Timeouts":   {},
		"Gatekeeper": {},
		"Telemetry":  {},
		"Storage":    {},
		"General":    {},
	}

	docs := GetEnvDocs()
	for env, doc := range docs {
		category := "General"
		switch {
		case strings.Contains(env, "SESSION") || strings.Contains(env, "TRACKED") || strings.Contains(env, "PARALLEL"):
			category = "Session"
		case strings.Contains(env, "TIMEOUT") || strings.Contains(env, "STALE") || strings.Contains(env, "DEPENDENCY_WAIT"):
			category = "Timeouts"
		case strings.Contains(env, "GATEKEEPER"):
			category = "Gatekeeper"
		case strings.Contains(env, "TELEMETRY") || strings.Contains(env, "LOG_LEVEL"):
			category = "Telemetry"
		case strings.Contains(env, "STORAGE"):
			category = "Storage"
		}
		categories[category] = append(categories[category], fmt.Sprintf("  %-40s %s", env, doc))
	}

	for category, vars := range categories {
		if len(vars) > 0 {
			fmt.Printf("%s:\n", category)
			for _, v := range vars {
				fmt.Println(v)
			}
			fmt.Println()
		}
	}
}
