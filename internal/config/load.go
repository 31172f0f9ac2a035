package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed analysis.defaults.yaml
var defaultsYAML []byte

//go:embed schema.cue
var schemaCUE []byte

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Format is the encoding of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Load reads an analysis configuration from a .json, .yaml or .yml file,
// validates it against the embedded schema and then checks its cross
// references.
func Load(path string) (*Analysis, error) {
	cleanPath := filepath.Clean(path)
	var format Format
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, format Format) (*Analysis, error) {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise config: %w", err)
	}
	if err := validateSchema(normalized); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	cfg := &Analysis{}
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in analysis configuration.
func Default() (*Analysis, error) {
	return Parse(defaultsYAML, FormatYAML)
}

// MustDefault returns the built-in configuration and panics if it does not
// parse. Intended for tests and command setup.
func MustDefault() *Analysis {
	cfg, err := Default()
	if err != nil {
		panic("built-in analysis config: " + err.Error())
	}
	return cfg
}

// DefaultYAML returns the embedded defaults document.
func DefaultYAML() []byte { return append([]byte(nil), defaultsYAML...) }

func validateSchema(doc []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Analysis"))
	value := ctx.CompileBytes(doc)
	if err := value.Err(); err != nil {
		return err
	}
	return def.Unify(value).Validate(cue.Concrete(true))
}
