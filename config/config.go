package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tsawler/go-segloader/vision/dataloader"
	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// Config is the YAML setup file of a segmentation data loader
type Config struct {
	Source     string          `yaml:"source"`      // manifest path
	RootFolder string          `yaml:"root_folder"` // prefix for every manifest token
	Shuffle    bool            `yaml:"shuffle"`
	Seed       int64           `yaml:"seed"`      // 0 draws a seed
	RandSkip   int             `yaml:"rand_skip"` // random startup skip bound
	NewHeight  int             `yaml:"new_height"`
	NewWidth   int             `yaml:"new_width"`
	BatchSize  int             `yaml:"batch_size"`
	IsColor    *bool           `yaml:"is_color"` // default: true
	CacheSize  int             `yaml:"cache_size"`
	Transform  TransformConfig `yaml:"transform"`
}

// TransformConfig contains crop, mirror and normalization settings
type TransformConfig struct {
	Phase      string    `yaml:"phase"` // train, test
	CropSize   int       `yaml:"crop_size"`
	Mirror     bool      `yaml:"mirror"`
	Scale      float32   `yaml:"scale"` // default: 1
	MeanValues []float32 `yaml:"mean_values"`
	Seed       int64     `yaml:"seed"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &dataloader.ConfigError{Op: "parse config", Err: err}
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.IsColor == nil {
		isColor := true
		cfg.IsColor = &isColor
	}
	if cfg.Transform.Scale == 0 {
		cfg.Transform.Scale = 1
	}
}

// Validate checks the configuration; every failure is a *dataloader.ConfigError
func Validate(cfg *Config) error {
	if cfg.Source == "" {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.New("source is required")}
	}
	if cfg.BatchSize <= 0 {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Errorf("batch_size must be positive, got %d", cfg.BatchSize)}
	}
	if cfg.RandSkip < 0 {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Errorf("rand_skip must not be negative, got %d", cfg.RandSkip)}
	}
	if cfg.NewHeight < 0 || cfg.NewWidth < 0 {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.New("new_height and new_width must not be negative")}
	}
	if (cfg.NewHeight == 0) != (cfg.NewWidth == 0) {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.New("new_height and new_width must be set at the same time")}
	}
	if cfg.CacheSize < 0 {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Errorf("cache_size must not be negative, got %d", cfg.CacheSize)}
	}

	t := cfg.Transform
	if _, err := preprocessing.ParsePhase(t.Phase); err != nil {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Wrap(err, "transform")}
	}
	if t.CropSize < 0 {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Errorf("transform crop_size must not be negative, got %d", t.CropSize)}
	}
	if cfg.NewHeight > 0 && t.CropSize > min(cfg.NewHeight, cfg.NewWidth) {
		return &dataloader.ConfigError{Op: "validate config", Err: errors.Errorf("transform crop_size %d exceeds resize target %dx%d", t.CropSize, cfg.NewHeight, cfg.NewWidth)}
	}
	return nil
}

// ToLoaderConfig converts the file configuration to a dataloader.Config.
// Collaborators and the logger are left for the caller to set.
func (c *Config) ToLoaderConfig() dataloader.Config {
	// Validate already rejected unknown phases
	phase, _ := preprocessing.ParsePhase(c.Transform.Phase)

	grayscale := c.IsColor != nil && !*c.IsColor
	return dataloader.Config{
		Source:     c.Source,
		RootFolder: c.RootFolder,
		Shuffle:    c.Shuffle,
		Seed:       c.Seed,
		RandSkip:   c.RandSkip,
		NewHeight:  c.NewHeight,
		NewWidth:   c.NewWidth,
		BatchSize:  c.BatchSize,
		Grayscale:  grayscale,
		CacheSize:  c.CacheSize,
		Transform: preprocessing.TransformConfig{
			Phase:      phase,
			CropSize:   c.Transform.CropSize,
			Mirror:     c.Transform.Mirror,
			Scale:      c.Transform.Scale,
			MeanValues: append([]float32(nil), c.Transform.MeanValues...),
			Seed:       c.Transform.Seed,
		},
	}
}
