// Package config loads bashguard configuration.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (BASHGUARD_*)
// 3. Project config (.bashguard/config.yaml in cwd)
// 4. Explicit config ($BASHGUARD_CONFIG or --config)
// 5. Home config (~/.config/bashguard/config.yaml)
// 6. Defaults
//
// It is read once at process start. Rule tables from the home and explicit
// files are merged onto the built-in ones; a layer can add rules but never
// remove them. The project file lives in whatever repository the agent is
// working in, so it may only tighten: it can turn strict double quotes on
// and the reviewer off, and nothing else.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/victorarias/bashguard/internal/classifier"
)

// ErrInvalidConfig is returned for a config file that exists but cannot be
// used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// DefaultModel is the model the reviewer asks.
const DefaultModel = "claude-opus-4-5-20251101"

const (
	defaultIdleTimeout = 5 * time.Minute
	defaultLogLevel    = "info"
	appDir             = "bashguard"
)

// Config holds all bashguard configuration.
type Config struct {
	// StrictDoubleQuotes keeps $ and ` active inside double quotes.
	StrictDoubleQuotes bool `yaml:"strict_double_quotes" json:"strict_double_quotes"`

	// Rules are added to the built-in rule tables.
	Rules classifier.Rules `yaml:"rules,omitempty" json:"rules,omitempty"`

	Reviewer ReviewerConfig `yaml:"reviewer" json:"reviewer"`

	Log LogConfig `yaml:"log" json:"log"`
}

// ReviewerConfig controls the optional model reviewer.
type ReviewerConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Model       string        `yaml:"model" json:"model"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// LogConfig controls the decision log.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Path is the decision log file. Empty means Dir()/decisions.log; "-"
	// means stderr.
	Path string `yaml:"path" json:"path"`
}

// Overrides are flag values. Nil pointers and empty strings leave the
// loaded value alone.
type Overrides struct {
	Strict   *bool
	Reviewer *bool
	Model    string
	LogLevel string
	LogPath  string
}

// fileConfig is the on-disk shape of the home and explicit files. Booleans
// are pointers so the explicit file can switch off what the home file
// switched on.
type fileConfig struct {
	StrictDoubleQuotes *bool            `yaml:"strict_double_quotes"`
	Rules              classifier.Rules `yaml:"rules"`
	Reviewer           struct {
		Enabled     *bool         `yaml:"enabled"`
		Model       string        `yaml:"model"`
		IdleTimeout time.Duration `yaml:"idle_timeout"`
	} `yaml:"reviewer"`
	Log LogConfig `yaml:"log"`
}

// projectFile is the shape of the project config.
type projectFile struct {
	StrictDoubleQuotes *bool `yaml:"strict_double_quotes"`
	Reviewer           struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"reviewer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Reviewer: ReviewerConfig{
			Model:       DefaultModel,
			IdleTimeout: defaultIdleTimeout,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > explicit > home > defaults
func Load(flags *Overrides) (*Config, error) {
	cfg := Default()

	explicit := explicitConfigPath()
	for _, path := range []string{homeConfigPath(), explicit} {
		fc, err := loadFromPath(path)
		if err != nil {
			return nil, err
		}
		if fc != nil {
			merge(cfg, fc)
		}
	}

	project := projectConfigPath()
	if samePath(project, explicit) {
		project = ""
	}
	pf, err := loadProject(project)
	if err != nil {
		return nil, err
	}
	if pf != nil {
		if pf.StrictDoubleQuotes != nil {
			cfg.StrictDoubleQuotes = true
		}
		if pf.Reviewer.Enabled != nil {
			cfg.Reviewer.Enabled = false
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if flags != nil {
		applyOverrides(cfg, flags)
	}
	return cfg, nil
}

// Dir is where bashguard keeps its home config, socket, PID file and log.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDir)
	}
	return filepath.Join(home, ".config", appDir)
}

// SocketPath is the reviewer daemon's unix socket.
func SocketPath() string { return filepath.Join(Dir(), "daemon.sock") }

// PIDPath is the reviewer daemon's PID file.
func PIDPath() string { return filepath.Join(Dir(), "daemon.pid") }

// LogPath returns the resolved decision log path.
func (c *Config) LogPath() string {
	switch p := c.Log.Path; {
	case p == "":
		return filepath.Join(Dir(), "decisions.log")
	case p == "-":
		return p
	case p == "~" || strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	default:
		return p
	}
}

// EffectiveRules returns the built-in rules with the configured additions.
func (c *Config) EffectiveRules() classifier.Rules {
	rules := classifier.DefaultRules().Merge(c.Rules)
	if c.StrictDoubleQuotes {
		rules.StrictDoubleQuotes = true
	}
	return rules
}

// Classifier compiles EffectiveRules.
func (c *Config) Classifier() (*classifier.Classifier, error) {
	cl, err := classifier.New(c.EffectiveRules())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cl, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// explicitConfigPath returns the operator-chosen config path, if any.
func explicitConfigPath() string {
	return strings.TrimSpace(os.Getenv("BASHGUARD_CONFIG"))
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".bashguard", "config.yaml")
}

// loadFromPath loads config from a YAML file. A missing file is not an
// error; unknown keys are.
func loadFromPath(path string) (*fileConfig, error) {
	var fc fileConfig
	found, err := decodeFile(path, &fc)
	if err != nil || !found {
		return nil, err
	}
	return &fc, nil
}

// loadProject loads the project config. Any key other than the two
// tightening switches is rejected, as is a value that would loosen them.
func loadProject(path string) (*projectFile, error) {
	var pf projectFile
	found, err := decodeFile(path, &pf)
	if err != nil || !found {
		return nil, err
	}
	if pf.StrictDoubleQuotes != nil && !*pf.StrictDoubleQuotes {
		return nil, fmt.Errorf("%w: %s: project config cannot turn strict_double_quotes off", ErrInvalidConfig, path)
	}
	if pf.Reviewer.Enabled != nil && *pf.Reviewer.Enabled {
		return nil, fmt.Errorf("%w: %s: project config cannot enable the reviewer", ErrInvalidConfig, path)
	}
	return &pf, nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func decodeFile(path string, v any) (bool, error) {
	if path == "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return true, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("BASHGUARD_STRICT"); v != "" {
		b, err := parseBool("BASHGUARD_STRICT", v)
		if err != nil {
			return err
		}
		cfg.StrictDoubleQuotes = b
	}
	if v := os.Getenv("BASHGUARD_REVIEWER"); v != "" {
		b, err := parseBool("BASHGUARD_REVIEWER", v)
		if err != nil {
			return err
		}
		cfg.Reviewer.Enabled = b
	}
	mergeStr(&cfg.Reviewer.Model, os.Getenv("BASHGUARD_MODEL"))
	mergeStr(&cfg.Log.Level, os.Getenv("BASHGUARD_LOG_LEVEL"))
	mergeStr(&cfg.Log.Path, os.Getenv("BASHGUARD_LOG_PATH"))
	return nil
}

func parseBool(name, v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, name, v)
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Strict != nil {
		cfg.StrictDoubleQuotes = *o.Strict
	}
	if o.Reviewer != nil {
		cfg.Reviewer.Enabled = *o.Reviewer
	}
	mergeStr(&cfg.Reviewer.Model, o.Model)
	mergeStr(&cfg.Log.Level, o.LogLevel)
	mergeStr(&cfg.Log.Path, o.LogPath)
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// merge merges a file layer into cfg, with the file taking precedence.
func merge(cfg *Config, fc *fileConfig) {
	if fc.StrictDoubleQuotes != nil {
		cfg.StrictDoubleQuotes = *fc.StrictDoubleQuotes
	}
	cfg.Rules = cfg.Rules.Merge(fc.Rules)

	if fc.Reviewer.Enabled != nil {
		cfg.Reviewer.Enabled = *fc.Reviewer.Enabled
	}
	mergeStr(&cfg.Reviewer.Model, fc.Reviewer.Model)
	if fc.Reviewer.IdleTimeout > 0 {
		cfg.Reviewer.IdleTimeout = fc.Reviewer.IdleTimeout
	}

	mergeStr(&cfg.Log.Level, fc.Log.Level)
	mergeStr(&cfg.Log.Path, fc.Log.Path)
}
