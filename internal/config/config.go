// Package config loads configuration with the precedence CLI flags > env
// vars > TOML file, and watches the file for live reloads.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/cinecam/internal/logging"
)

// envPrefix namespaces every environment override.
const envPrefix = "CINECAM_"

// LoadConfig fills opts from the TOML file and environment, without
// overwriting any flag the user set explicitly on the command line. opts
// must be a pointer to a struct; fields opt in with `toml` (dot notation
// for nesting) and `env` tags. The file path is taken from the struct's
// Config field.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	var filePath string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		filePath = f.String()
	}

	var fileValues map[string]any
	if filePath != "" {
		if data, err := os.ReadFile(filePath); err == nil {
			if err := toml.Unmarshal(data, &fileValues); err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		spec := t.Field(i)
		if changed[flagName(spec.Name)] {
			continue
		}
		if path := spec.Tag.Get("toml"); path != "" && fileValues != nil {
			if value := lookupDotted(fileValues, path); value != nil {
				assign(field, value)
			}
		}
		if key := spec.Tag.Get("env"); key != "" {
			if value := os.Getenv(envPrefix + key); value != "" {
				assignString(field, value)
			}
		}
	}
	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

// flagName maps a field name to its kebab-case CLI flag.
// "FrameRate" becomes "frame-rate".
func flagName(field string) string {
	var out []rune
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// lookupDotted walks nested TOML tables with dot notation.
func lookupDotted(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current[parts[len(parts)-1]]
}

func assign(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	}
}

func assignString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	}
}

// LoadLoggingConfig reads the [logging] table. Keys other than level and
// format are per-module level overrides. Missing or unreadable files yield
// the defaults.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}
	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
