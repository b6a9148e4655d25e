// Package config holds the resize pipeline configuration: defaults, viper
// loading (file, environment, flags) and validation.
package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/pageresizer/internal/discovery"
	"github.com/Lllllllleong/pageresizer/internal/geometry"
	"github.com/Lllllllleong/pageresizer/internal/resizeerr"
)

// EnvPrefix prefixes every environment override, e.g. PDFRESIZE_TARGET_FORMAT.
const EnvPrefix = "PDFRESIZE"

// Config is the explicit configuration of one pipeline run.
type Config struct {
	InputPath          string        `mapstructure:"input_path"`
	OutputPath         string        `mapstructure:"output_path"`
	TargetFormat       string        `mapstructure:"target_format"`
	CustomWidthMM      float64       `mapstructure:"custom_width_mm"`
	CustomHeightMM     float64       `mapstructure:"custom_height_mm"`
	OrderBy            string        `mapstructure:"order_by"`
	UseManifest        bool          `mapstructure:"use_manifest"`
	ManifestPath       string        `mapstructure:"manifest_path"`
	ManifestFullPath   bool          `mapstructure:"manifest_full_path"` // Write full paths (default) or bare names.
	ManifestParallel   bool          `mapstructure:"manifest_parallel"`  // Manifest runs are sequential unless set.
	DocumentTypeSuffix string        `mapstructure:"document_type_suffix"`
	Workers            int           `mapstructure:"workers"`          // 0 = one per CPU.
	DocumentTimeout    time.Duration `mapstructure:"document_timeout"` // 0 = no per-document budget.
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input_path", "")
	v.SetDefault("output_path", "")
	v.SetDefault("target_format", string(geometry.FormatA4))
	v.SetDefault("custom_width_mm", 0.0)
	v.SetDefault("custom_height_mm", 0.0)
	v.SetDefault("order_by", string(discovery.OrderByName))
	v.SetDefault("use_manifest", false)
	v.SetDefault("manifest_path", discovery.DefaultManifestPath)
	v.SetDefault("manifest_full_path", true)
	v.SetDefault("manifest_parallel", false)
	v.SetDefault("document_type_suffix", "pdf")
	v.SetDefault("workers", 0)
	v.SetDefault("document_timeout", "0s")
}

// NewViper returns a viper instance with defaults and environment binding.
// When configFile is set it is read as TOML.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}
	}
	return v, nil
}

// Load unmarshals v into a Config. It does not validate.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}

// Default returns the configuration with every default applied.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := Load(v)
	return cfg
}

// Resolved is a validated Config with its enums parsed.
type Resolved struct {
	Config
	Format geometry.Format
	Order  discovery.OrderBy
	Target geometry.Dimensions
}

// Validate checks cfg and computes the run-wide target dimensions. Every
// error it returns is a fatal configuration error.
func (cfg Config) Validate() (Resolved, error) {
	r := Resolved{Config: cfg}

	if strings.TrimSpace(cfg.InputPath) == "" && !cfg.UseManifest {
		return r, resizeerr.Config(resizeerr.ErrInvalidConfig,
			"pass the input file or directory", "input path is empty")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return r, resizeerr.Config(resizeerr.ErrInvalidConfig,
			"pass an output directory", "output path is empty")
	}

	format, err := geometry.ParseFormat(cfg.TargetFormat)
	if err != nil {
		return r, err
	}
	catalog := geometry.Catalog{Custom: geometry.SizeMM{Width: cfg.CustomWidthMM, Height: cfg.CustomHeightMM}}
	target, err := catalog.TargetDimensions(format)
	if err != nil {
		return r, err
	}
	order, err := discovery.ParseOrderBy(cfg.OrderBy)
	if err != nil {
		return r, err
	}

	if r.ManifestPath == "" {
		r.ManifestPath = discovery.DefaultManifestPath
	}
	r.DocumentTypeSuffix = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.DocumentTypeSuffix), "."))
	if r.DocumentTypeSuffix == "" {
		r.DocumentTypeSuffix = "pdf"
	}
	if r.Workers < 0 {
		return r, resizeerr.Config(resizeerr.ErrInvalidConfig, "", "workers must not be negative, got %d", cfg.Workers)
	}
	if r.Workers == 0 {
		r.Workers = runtime.NumCPU()
	}
	if r.DocumentTimeout < 0 {
		return r, resizeerr.Config(resizeerr.ErrInvalidConfig, "", "document timeout must not be negative, got %s", cfg.DocumentTimeout)
	}

	r.Format = format
	r.Order = order
	r.Target = target
	return r, nil
}

// InputKind classifies the input path.
type InputKind int

const (
	InputMissing InputKind = iota
	InputFile
	InputDirectory
)

// StatInput reports whether path is a file, a directory or neither.
func StatInput(path string) InputKind {
	fi, err := os.Stat(path)
	switch {
	case err != nil:
		return InputMissing
	case fi.IsDir():
		return InputDirectory
	default:
		return InputFile
	}
}
