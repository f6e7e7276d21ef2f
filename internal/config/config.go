// Package config resolves bakery settings from defaults, a .env file, an
// optional config file, environment variables and command-line flags, in
// that order of increasing precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables read by Load.
const (
	EnvDataPath          = "BAKERY_DATA_PATH"
	EnvDatabase          = "BAKERY_DATABASE"
	EnvKeepHistory       = "BAKERY_KEEP_HISTORY"
	EnvPreserveEphemeral = "BAKERY_PRESERVE_EPHEMERAL"
	EnvLogLevel          = "BAKERY_LOG_LEVEL"
	EnvLogFormat         = "BAKERY_LOG_FORMAT"
)

// Config holds resolved settings.
type Config struct {
	DataPath          string `json:"data_path"`
	Database          string `json:"database"`
	KeepHistory       bool   `json:"keep_history"`
	PreserveEphemeral bool   `json:"preserve_ephemeral"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
}

// Default returns the built-in settings. Database is left empty and
// resolved under DataPath by Load.
func Default() Config {
	dataPath := ".bakery"
	if home, err := os.UserHomeDir(); err == nil {
		dataPath = filepath.Join(home, ".bakery")
	}
	return Config{
		DataPath:  dataPath,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load resolves configuration. configPath may be empty. envFiles default
// to ".env"; missing env files are ignored.
func Load(configPath string, envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if configPath != "" {
		if err := cfg.applyFile(configPath); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	cfg.Resolve()
	return cfg, nil
}

// Resolve expands "~" in paths and places the database under DataPath
// when it was not set explicitly. Call it again after overriding fields.
func (c *Config) Resolve() {
	c.DataPath = expandHome(c.DataPath)
	if c.Database == "" {
		c.Database = filepath.Join(c.DataPath, "bakery.db")
	}
	c.Database = expandHome(c.Database)
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// fileConfig mirrors the schema. Optional strings decode as empty when
// absent.
type fileConfig struct {
	DataPath          string `json:"data_path"`
	Database          string `json:"database"`
	KeepHistory       bool   `json:"keep_history"`
	PreserveEphemeral bool   `json:"preserve_ephemeral"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
}

// applyFile validates a config file against the embedded schema and
// applies it.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc, err := decodeFile(path, data)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}

	if fc.DataPath != "" {
		c.DataPath = fc.DataPath
	}
	if fc.Database != "" {
		c.Database = fc.Database
	}
	c.KeepHistory = fc.KeepHistory
	c.PreserveEphemeral = fc.PreserveEphemeral
	c.LogLevel = fc.LogLevel
	c.LogFormat = fc.LogFormat
	return nil
}

// decodeFile unifies the file with #Config, which fills defaults and
// rejects unknown fields and out-of-range values.
func decodeFile(path string, data []byte) (fileConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("compile schema: %w", err)
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue", ".json":
		// JSON is valid CUE.
		value = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fileConfig{}, fmt.Errorf("parse yaml: %w", err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		value = ctx.Encode(raw)
	default:
		return fileConfig{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if err := value.Err(); err != nil {
		return fileConfig{}, fmt.Errorf("parse: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fileConfig{}, fmt.Errorf("validate: %w", err)
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return fileConfig{}, fmt.Errorf("decode: %w", err)
	}
	return fc, nil
}

// applyEnv overrides fields from environment variables that are set.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDataPath); ok && v != "" {
		c.DataPath = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		c.Database = v
	}
	if v, ok := lookup(EnvKeepHistory); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKeepHistory, err)
		}
		c.KeepHistory = b
	}
	if v, ok := lookup(EnvPreserveEphemeral); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPreserveEphemeral, err)
		}
		c.PreserveEphemeral = b
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
