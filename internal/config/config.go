// SPDX-License-Identifier: EPL-2.0

// Package config loads audstream settings from a TOML file, AUDSTREAM_
// environment variables and command line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ik5/audstream/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "AUDSTREAM_"

var durationType = reflect.TypeFor[time.Duration]()

// Options is the flat configuration of the CLI. Field names map to flags
// ("DriverName" -> "driver-name"), toml tags to dotted file paths and env
// tags to AUDSTREAM_ variables.
type Options struct {
	Config string `help:"Config file path"`

	DriverName           string `toml:"driver.name" env:"DRIVER_NAME" help:"Driver backend: loopback or oto"`
	DriverInputChannels  int    `toml:"driver.input_channels" env:"DRIVER_INPUT_CHANNELS" help:"Loopback input channels"`
	DriverOutputChannels int    `toml:"driver.output_channels" env:"DRIVER_OUTPUT_CHANNELS" help:"Device output channels"`
	DriverSampleRate     int    `toml:"driver.sample_rate" env:"DRIVER_SAMPLE_RATE" help:"Initial device sample rate"`
	DriverSampleRates    []int  `toml:"driver.sample_rates" env:"DRIVER_SAMPLE_RATES" help:"Rates the loopback device accepts"`
	DriverFormat         string `toml:"driver.format" env:"DRIVER_FORMAT" help:"Native device sample format"`
	DriverBigEndian      bool   `toml:"driver.big_endian" env:"DRIVER_BIG_ENDIAN" help:"Device buffers are big-endian"`
	DriverNonInterleaved bool   `toml:"driver.non_interleaved" env:"DRIVER_NON_INTERLEAVED" help:"Device buffers are planar"`
	DriverPeriod         int    `toml:"driver.period" env:"DRIVER_PERIOD" help:"Preferred device period in frames"`

	StreamSampleRate         int           `toml:"stream.sample_rate" env:"STREAM_SAMPLE_RATE" help:"Requested sample rate, 0 for the device preference"`
	StreamBufferFrames       int           `toml:"stream.buffer_frames" env:"STREAM_BUFFER_FRAMES" help:"Requested period in frames, 0 for the device preference"`
	StreamInputChannels      int           `toml:"stream.input_channels" env:"STREAM_INPUT_CHANNELS" help:"User input channels"`
	StreamOutputChannels     int           `toml:"stream.output_channels" env:"STREAM_OUTPUT_CHANNELS" help:"User output channels"`
	StreamFirstInputChannel  int           `toml:"stream.first_input_channel" env:"STREAM_FIRST_INPUT_CHANNEL" help:"First device input channel"`
	StreamFirstOutputChannel int           `toml:"stream.first_output_channel" env:"STREAM_FIRST_OUTPUT_CHANNEL" help:"First device output channel"`
	StreamFormat             string        `toml:"stream.format" env:"STREAM_FORMAT" help:"User sample format"`
	StreamNonInterleaved     bool          `toml:"stream.non_interleaved" env:"STREAM_NON_INTERLEAVED" help:"User buffers are planar"`
	StreamStopTimeout        time.Duration `toml:"stream.stop_timeout" env:"STREAM_STOP_TIMEOUT" help:"Bound on the drain wait, 0 waits forever"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL" help:"Log level"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT" help:"Log format: text or json"`

	MetricsAddr string `toml:"metrics.addr" env:"METRICS_ADDR" help:"Serve Prometheus metrics on this address"`
}

// Default returns the built-in settings.
func Default() Options {
	return Options{
		DriverName:           "loopback",
		DriverInputChannels:  2,
		DriverOutputChannels: 2,
		DriverSampleRate:     48000,
		DriverSampleRates:    []int{44100, 48000, 96000},
		DriverFormat:         "int32",
		DriverPeriod:         256,
		StreamOutputChannels: 2,
		StreamFormat:         "float32",
		StreamStopTimeout:    2 * time.Second,
		LoggingLevel:         "info",
		LoggingFormat:        "text",
	}
}

// RegisterFlags binds one flag per Options field to fs, using the current
// field values as defaults.
func RegisterFlags(fs *pflag.FlagSet, opts *Options) {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		name := fieldNameToFlag(fieldType.Name)
		help := fieldType.Tag.Get("help")

		switch ptr := field.Addr().Interface().(type) {
		case *string:
			fs.StringVar(ptr, name, *ptr, help)
		case *bool:
			fs.BoolVar(ptr, name, *ptr, help)
		case *int:
			fs.IntVar(ptr, name, *ptr, help)
		case *[]int:
			fs.IntSliceVar(ptr, name, *ptr, help)
		case *time.Duration:
			fs.DurationVar(ptr, name, *ptr, help)
		}
	}
}

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// If cmd is provided, flags explicitly set via CLI will not be overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	var configPath string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		configPath = f.String()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			var config map[string]any
			if err := toml.Unmarshal(data, &config); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}

			for i := 0; i < v.NumField(); i++ {
				fieldType := t.Field(i)
				if changedFlags[fieldNameToFlag(fieldType.Name)] {
					continue
				}

				if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(config, tomlPath); value != nil {
						if err := setFieldValue(v.Field(i), value); err != nil {
							return fmt.Errorf("config %s: %w", tomlPath, err)
						}
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if changedFlags[fieldNameToFlag(fieldType.Name)] {
			continue
		}

		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				if err := setFieldValueFromString(v.Field(i), envValue); err != nil {
					return fmt.Errorf("env %s%s: %w", EnvPrefix, envKey, err)
				}
			}
		}
	}

	return nil
}

// Logging returns the logging section of opts.
func (o Options) Logging() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Modules: LoadLoggingModules(o.Config),
	}
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Config" -> "config".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue sets a field from a decoded TOML value.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want duration string, got %T", value)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
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
		if i, ok := value.(int64); ok {
			field.SetInt(i)
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("want array, got %T", value)
		}
		switch field.Type().Elem().Kind() {
		case reflect.Int:
			slice := make([]int, 0, len(arr))
			for _, v := range arr {
				if n, intOk := v.(int64); intOk {
					slice = append(slice, int(n))
				}
			}
			field.Set(reflect.ValueOf(slice))
		case reflect.String:
			slice := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, strOk := v.(string); strOk {
					slice = append(slice, s)
				}
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
	return nil
}

// setFieldValueFromString sets a field value from string (for env vars).
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		switch field.Type().Elem().Kind() {
		case reflect.Int:
			slice := make([]int, len(parts))
			for i, part := range parts {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					return err
				}
				slice[i] = n
			}
			field.Set(reflect.ValueOf(slice))
		case reflect.String:
			slice := make([]string, len(parts))
			for i, part := range parts {
				slice[i] = strings.TrimSpace(part)
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
	return nil
}

// LoadLoggingModules reads per-module levels from the [logging.modules]
// table of the config file. Missing files yield an empty map.
func LoadLoggingModules(configPath string) map[string]string {
	modules := make(map[string]string)
	if configPath == "" {
		return modules
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return modules
	}

	var raw struct {
		Logging struct {
			Modules map[string]string `toml:"modules"`
		} `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return modules
	}

	for k, v := range raw.Logging.Modules {
		modules[k] = v
	}
	return modules
}
