package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config captures the runtime knobs for an ensembling run.
type Config struct {
	DataDir         string  `yaml:"data_dir"`
	CheckpointDir   string  `yaml:"checkpoint_dir"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
	LearnRate       float64 `yaml:"learn_rate"`
	Seed            int64   `yaml:"seed"`
	LogEvery        int     `yaml:"log_every"`
	Download        bool    `yaml:"download"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:         "data",
		CheckpointDir:   "weights",
		Epochs:          20,
		BatchSize:       32,
		ValidationSplit: 0.2,
		LearnRate:       0.001,
		Seed:            42,
		LogEvery:        50,
	}
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir       string
	CheckpointDir string
	Epochs        int
	BatchSize     int
	Seed          int64
	LogEvery      int
	Download      bool
}

// Load reads and validates a Config from YAML, starting from defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parseYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.CheckpointDir != "" {
		c.CheckpointDir = o.CheckpointDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Download {
		c.Download = true
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.CheckpointDir == "" {
		return errors.New("checkpoint_dir must be set")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in [0,1) (got %g)", c.ValidationSplit)
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("learn_rate must be > 0 (got %g)", c.LearnRate)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	return nil
}

func parseYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: missing ':'", lineNo)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, "\"'")
		switch key {
		case "data_dir":
			cfg.DataDir = value
		case "checkpoint_dir":
			cfg.CheckpointDir = value
		case "epochs":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: epochs: %w", lineNo, err)
			}
			cfg.Epochs = v
		case "batch_size":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: batch_size: %w", lineNo, err)
			}
			cfg.BatchSize = v
		case "validation_split":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: validation_split: %w", lineNo, err)
			}
			cfg.ValidationSplit = v
		case "learn_rate":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: learn_rate: %w", lineNo, err)
			}
			cfg.LearnRate = v
		case "seed":
			v, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: seed: %w", lineNo, err)
			}
			cfg.Seed = v
		case "log_every":
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: log_every: %w", lineNo, err)
			}
			cfg.LogEvery = v
		case "download":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: download: %w", lineNo, err)
			}
			cfg.Download = v
		default:
			return nil, fmt.Errorf("line %d: unknown key %s", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
