// Package config loads and validates the runtime's immutable,
// construction-time configuration (spec.md §9's "global mutable state
// → construction-time configuration" note), mirroring the teacher's
// src/config package: env/v11 for environment variables, go-playground's
// validator for struct validation, and a path-based loader that
// dispatches on file extension for the cases where an embedder wants to
// pin the gas schedule in a file instead — sonic for the JSON branch,
// yaml.v3 for the YAML one, exactly as the teacher's LoadConfigFile does.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultAllowedImports is the §4.1 allow-list: every env.<field>
// import a conforming script may declare.
var DefaultAllowedImports = map[string]struct{}{
	"get_span_size":          {},
	"read_calldata":          {},
	"set_return_data":        {},
	"get_ask_count":          {},
	"get_min_count":          {},
	"get_prepare_time":       {},
	"get_execute_time":       {},
	"get_ans_count":          {},
	"ask_external_data":      {},
	"get_external_data_status": {},
	"read_external_data":     {},
	"ecvrf_verify":           {},
}

// GasSchedule fixes spec.md §9 Open Question (a). Values chosen once
// and documented in DESIGN.md; not a tunable surface exposed to scripts.
type GasSchedule struct {
	BaseOperatorCost   uint64 `env:"GAS_BASE_OPERATOR_COST" envDefault:"1" validate:"gte=1"`
	BranchOperatorCost uint64 `env:"GAS_BRANCH_OPERATOR_COST" envDefault:"8" validate:"gte=1"`
	ImportFee          uint64 `env:"GAS_IMPORT_FEE" envDefault:"2000" validate:"gte=1"`
	ECVRFFee           uint64 `env:"GAS_ECVRF_FEE" envDefault:"20000000" validate:"gte=1"`
	MemoryReadPerByte  uint64 `env:"GAS_MEMORY_READ_PER_BYTE" envDefault:"3" validate:"gte=1"`
	MemoryWritePerByte uint64 `env:"GAS_MEMORY_WRITE_PER_BYTE" envDefault:"5" validate:"gte=1"`
}

// RuntimeConfig is the immutable configuration passed by value to the
// Compiler, Cache, and Runner.
type RuntimeConfig struct {
	Gas            GasSchedule
	AllowedImports map[string]struct{}
	MaxMemoryPages uint32
	MaxStackDepth  uint32
	CacheCapacity  int
}

// envConfig is the flat shape env/v11 parses before it is folded into
// a RuntimeConfig; env/v11 does not traverse into map fields, so the
// allow-list stays a Go-side constant rather than a parsed field.
type envConfig struct {
	Gas            GasSchedule `envPrefix:""`
	MaxMemoryPages uint32      `env:"MAX_MEMORY_PAGES" envDefault:"512" validate:"gte=1,lte=512"`
	MaxStackDepth  uint32      `env:"MAX_STACK_DEPTH" envDefault:"16384" validate:"gte=1"`
	CacheCapacity  int         `env:"CACHE_CAPACITY" envDefault:"128" validate:"gte=1"`
}

// Default returns the fixed RuntimeConfig described in SPEC_FULL.md §3,
// with no environment or file overrides applied.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Gas: GasSchedule{
			BaseOperatorCost:   1,
			BranchOperatorCost: 8,
			ImportFee:          2_000,
			ECVRFFee:           20_000_000,
			MemoryReadPerByte:  3,
			MemoryWritePerByte: 5,
		},
		AllowedImports: DefaultAllowedImports,
		MaxMemoryPages: 512,
		MaxStackDepth:  16384,
		CacheCapacity:  128,
	}
}

// LoadFromEnv parses a RuntimeConfig from environment variables,
// falling back to Default's values wherever a variable is unset.
func LoadFromEnv() (RuntimeConfig, error) {
	ec := envConfig{}
	if err := env.Parse(&ec); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := validator.New().Struct(&ec); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: validating environment config: %w", err)
	}
	return RuntimeConfig{
		Gas:            ec.Gas,
		AllowedImports: DefaultAllowedImports,
		MaxMemoryPages: ec.MaxMemoryPages,
		MaxStackDepth:  ec.MaxStackDepth,
		CacheCapacity:  ec.CacheCapacity,
	}, nil
}

// fileConfig is the shape loaded from a YAML/JSON config file; it
// embeds envConfig's validated fields with file-friendly tags.
type fileConfig struct {
	Gas            GasSchedule `yaml:"gas" json:"gas"`
	MaxMemoryPages uint32      `yaml:"maxMemoryPages" json:"maxMemoryPages" validate:"gte=1,lte=512"`
	MaxStackDepth  uint32      `yaml:"maxStackDepth" json:"maxStackDepth" validate:"gte=1"`
	CacheCapacity  int         `yaml:"cacheCapacity" json:"cacheCapacity" validate:"gte=1"`
}

// UnsupportedExtensionError mirrors the teacher's config.UnsupportedExtensionError:
// a small named error type rather than a sentinel, so the extension
// that failed is part of the error value itself.
type UnsupportedExtensionError struct {
	Extension string
}

func (e *UnsupportedExtensionError) Error() string {
	return "unsupported config file extension: " + e.Extension
}

// LoadFromFile loads a RuntimeConfig from a YAML or JSON file, mirroring
// the teacher's LoadConfigFile extension-dispatch shape.
func LoadFromFile(path string) (cfg RuntimeConfig, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return RuntimeConfig{}, err
	}

	file, err := os.Open(absPath) // #nosec G304 - absPath derives from operator-supplied config path
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: opening config file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Error("error closing config file", "path", absPath, "err", cerr)
		}
	}()

	fc := fileConfig{}
	ext := strings.ToLower(filepath.Ext(absPath))
	switch ext {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(&fc)
	case ".json":
		err = sonic.ConfigDefault.NewDecoder(file).Decode(&fc)
	default:
		return RuntimeConfig{}, &UnsupportedExtensionError{Extension: ext}
	}
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: decoding config file: %w", err)
	}

	if err := validator.New().Struct(&fc); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: validating config file: %w", err)
	}

	return RuntimeConfig{
		Gas:            fc.Gas,
		AllowedImports: DefaultAllowedImports,
		MaxMemoryPages: fc.MaxMemoryPages,
		MaxStackDepth:  fc.MaxStackDepth,
		CacheCapacity:  fc.CacheCapacity,
	}, nil
}
