// Package config loads batchdeob settings. Layers apply lowest first:
// Default, a YAML file checked against an embedded JSON Schema, BATCHDEOB_*
// environment variables, then whatever the caller sets from flags. Validate
// checks the merged result.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/batchdeob/internal/logging"
	"github.com/aledsdavies/batchdeob/pkgs/engine"
	"github.com/aledsdavies/batchdeob/pkgs/environ"
	"github.com/aledsdavies/batchdeob/pkgs/errors"
	"github.com/aledsdavies/batchdeob/pkgs/normalize"
	"github.com/aledsdavies/batchdeob/pkgs/report"
	"github.com/aledsdavies/batchdeob/pkgs/traits"
)

// CurrentVersion is the configuration layout this build reads
const CurrentVersion = "v1"

// EnvPrefix prefixes every environment override
const EnvPrefix = "BATCHDEOB"

//go:embed schema.json
var schemaJSON string

// Environment selects the starting variable table
type Environment struct {
	Profile   string            `yaml:"profile" json:"profile" validate:"required"`
	Overrides map[string]string `yaml:"overrides,omitempty" json:"overrides,omitempty"`
}

// Output selects how results are written
type Output struct {
	Format string `yaml:"format" json:"format" validate:"required"`
	Dir    string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Config is the complete set of settings
type Config struct {
	Version                  string      `yaml:"version" json:"version" validate:"required"`
	Environment              Environment `yaml:"environment" json:"environment"`
	ScriptName               string      `yaml:"script_name" json:"script_name" validate:"required"`
	FoldQuotedDelimiters     bool        `yaml:"fold_quoted_delimiters" json:"fold_quoted_delimiters"`
	MaxDepth                 int         `yaml:"max_depth" json:"max_depth" validate:"min=1,max=4096"`
	ComplexOneLinerThreshold int         `yaml:"complex_one_liner_threshold" json:"complex_one_liner_threshold" validate:"min=1"`
	LOLBAS                   []string    `yaml:"lolbas" json:"lolbas" validate:"dive,required"`
	Output                   Output      `yaml:"output" json:"output"`
	LogLevel                 string      `yaml:"log_level" json:"log_level" validate:"required"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Version:                  CurrentVersion,
		Environment:              Environment{Profile: environ.ProfileSynthetic.String()},
		ScriptName:               normalize.DefaultScriptName,
		MaxDepth:                 normalize.DefaultMaxDepth,
		ComplexOneLinerThreshold: engine.DefaultComplexOneLinerThreshold,
		LOLBAS:                   slices.Clone(traits.DefaultLOLBAS),
		Output:                   Output{Format: report.FormatText.String()},
		LogLevel:                 "info",
	}
}

// Load builds a configuration from defaults, the file at path when path is
// not empty, and the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewConfigError("cannot read config file", err).WithContext("path", path)
		}
		if err := cfg.Merge(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge layers a YAML document over cfg after checking it against the
// schema. Keys the document leaves out keep their current value.
func (c *Config) Merge(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.NewConfigError("invalid YAML", err)
	}
	if doc == nil {
		return nil
	}
	if err := checkSchema(doc); err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.NewConfigError("cannot decode config", err)
	}
	return nil
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if compiler.Formats == nil {
			compiler.Formats = make(map[string]func(interface{}) bool)
		}
		compiler.Formats["semver"] = func(v interface{}) bool {
			s, ok := v.(string)
			return !ok || semver.IsValid(s)
		}

		url := "schema://batchdeob/config.json"
		if schemaErr = compiler.AddResource(url, strings.NewReader(schemaJSON)); schemaErr != nil {
			return
		}
		compiledSchema, schemaErr = compiler.Compile(url)
	})
	return compiledSchema, schemaErr
}

// checkSchema validates a decoded YAML document. The document goes through
// JSON first so the validator sees JSON types.
func checkSchema(doc any) error {
	s, err := schema()
	if err != nil {
		return errors.NewConfigError("cannot compile config schema", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.NewConfigError("config is not representable as JSON", err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return errors.NewConfigError("config is not representable as JSON", err)
	}
	if err := s.Validate(value); err != nil {
		return errors.NewConfigError("config does not match schema", err)
	}
	return nil
}

// envOverrides mirrors the settings that can come from the environment.
// Nil fields were not set.
type envOverrides struct {
	Profile    *string  `envconfig:"PROFILE"`
	ScriptName *string  `envconfig:"SCRIPT_NAME"`
	FoldQuoted *bool    `envconfig:"FOLD_QUOTED_DELIMITERS"`
	MaxDepth   *int     `envconfig:"MAX_DEPTH"`
	Threshold  *int     `envconfig:"COMPLEX_ONE_LINER_THRESHOLD"`
	LOLBAS     []string `envconfig:"LOLBAS"`
	Format     *string  `envconfig:"OUTPUT_FORMAT"`
	Dir        *string  `envconfig:"OUTPUT_DIR"`
	LogLevel   *string  `envconfig:"LOG_LEVEL"`
}

// ApplyEnv layers BATCHDEOB_* variables over cfg
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return errors.NewConfigError("invalid environment override", err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Environment.Profile, o.Profile)
	set(&c.ScriptName, o.ScriptName)
	set(&c.Output.Format, o.Format)
	set(&c.Output.Dir, o.Dir)
	set(&c.LogLevel, o.LogLevel)
	if o.FoldQuoted != nil {
		c.FoldQuotedDelimiters = *o.FoldQuoted
	}
	if o.MaxDepth != nil {
		c.MaxDepth = *o.MaxDepth
	}
	if o.Threshold != nil {
		c.ComplexOneLinerThreshold = *o.Threshold
	}
	if o.LOLBAS != nil {
		c.LOLBAS = o.LOLBAS
	}
	return nil
}

var validate = validator.New()

// Validate checks the merged settings
func (c *Config) Validate() error {
	if !semver.IsValid(c.Version) || semver.Major(c.Version) != semver.Major(CurrentVersion) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("unsupported config version %q, expected %s", c.Version, CurrentVersion)).
			WithContext("version", c.Version)
	}

	if err := validate.Struct(c); err != nil {
		var fields []string
		if ves, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ves {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return errors.New(errors.ErrConfig, "invalid settings: "+strings.Join(fields, ", "))
	}

	if _, ok := environ.ParseProfile(c.Environment.Profile); !ok {
		return enumError("environment.profile", c.Environment.Profile, environ.ProfileNames)
	}
	if _, ok := report.ParseFormat(c.Output.Format); !ok {
		return enumError("output.format", c.Output.Format, report.Formats())
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return enumError("log_level", c.LogLevel, []string{"debug", "info", "warn", "error"})
	}
	return nil
}

func enumError(key, value string, allowed []string) error {
	msg := fmt.Sprintf("unknown %s %q (one of %s)", key, value, strings.Join(allowed, ", "))
	if hint := Suggest(value, allowed); hint != "" {
		msg += fmt.Sprintf("; did you mean %q?", hint)
	}
	return errors.New(errors.ErrConfig, msg).WithContext("key", key)
}

// Suggest returns the candidate closest to value, or "" when none is close
func Suggest(value string, candidates []string) string {
	ranks := fuzzy.RankFindFold(value, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

// Level is the configured log level
func (c *Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// Format is the configured report format
func (c *Config) Format() report.Format {
	f, _ := report.ParseFormat(c.Output.Format)
	return f
}

// EngineOptions translates the settings into engine options. host supplies
// the KEY=VALUE pairs of the host profile.
func (c *Config) EngineOptions(host []string, logger *slog.Logger) []engine.Option {
	profile, _ := environ.ParseProfile(c.Environment.Profile)
	env := environ.ForProfile(profile, host)
	env.Merge(c.Environment.Overrides)

	return []engine.Option{
		engine.WithEnvironment(env),
		engine.WithScriptName(c.ScriptName),
		engine.WithQuotedDelimiterFolding(c.FoldQuotedDelimiters),
		engine.WithMaxDepth(c.MaxDepth),
		engine.WithComplexOneLinerThreshold(c.ComplexOneLinerThreshold),
		engine.WithLOLBAS(c.LOLBAS),
		engine.WithLogger(logger),
	}
}

// Marshal writes cfg as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
