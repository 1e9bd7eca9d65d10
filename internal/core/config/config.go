package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	appName        = "biliget"
	configFileName = "config.yml"

	// DefaultQuality is the 1080P tier, the best one available without a VIP account.
	DefaultQuality = 80
)

// Config holds all user settings
type Config struct {
	// OutputDir is the download root; each video gets a subdirectory named after its title.
	OutputDir string `yaml:"output_dir"`

	Quality int `yaml:"quality"`

	// FFmpegPath overrides the ffmpeg binary looked up in PATH.
	FFmpegPath string `yaml:"ffmpeg_path,omitempty"`

	// ParallelFetch downloads the video and audio tracks of a part concurrently.
	ParallelFetch bool `yaml:"parallel_fetch"`

	Bilibili BilibiliConfig `yaml:"bilibili"`
}

// BilibiliConfig holds Bilibili specific settings
type BilibiliConfig struct {
	Cookie string `yaml:"cookie,omitempty"`

	// LegacyFallback enables the unsigned single-file playurl endpoint when the
	// adaptive one yields nothing.
	LegacyFallback bool `yaml:"legacy_fallback"`

	// AcceptNumericIDs allows av numbers in addition to BV codes.
	AcceptNumericIDs bool `yaml:"accept_numeric_ids"`
}

// Default returns the built-in configuration
func Default() *Config {
	outputDir := "bili_download"
	if home, err := os.UserHomeDir(); err == nil {
		outputDir = filepath.Join(home, "Downloads", "bili_download")
	}

	return &Config{
		OutputDir: outputDir,
		Quality:   DefaultQuality,
		Bilibili: BilibiliConfig{
			LegacyFallback:   true,
			AcceptNumericIDs: true,
		},
	}
}

// ConfigDir returns the directory holding the config file and local state
func ConfigDir() (string, error) {
	if dir := os.Getenv("BILIGET_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// SavePath returns the config file path
func SavePath() string {
	dir, err := ConfigDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(dir, configFileName)
}

// Exists reports whether a config file has been written
func Exists() bool {
	_, err := os.Stat(SavePath())
	return err == nil
}

// Load reads the config file as saved. Missing fields keep their defaults.
// Environment overrides are not applied; see Effective.
func Load() (*Config, error) {
	data, err := os.ReadFile(SavePath())
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SavePath(), err)
	}
	return cfg, nil
}

// LoadOrDefault loads the config file, falling back to defaults on any error.
// Use it for reading only; LoadForUpdate is the one to pass to Save.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
	}
	return cfg
}

// LoadForUpdate loads the config file for modification. A missing file yields
// defaults; an unreadable or malformed one is an error so Save never replaces it.
func LoadForUpdate() (*Config, error) {
	cfg, err := Load()
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the config file, creating its directory if needed
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// The cookie is a credential
	return os.WriteFile(SavePath(), data, 0600)
}

// Effective returns a copy with environment overrides applied.
// BILIGET_SESSDATA supplies a session for one run without touching the file.
func (c *Config) Effective() *Config {
	eff := *c
	if sess := os.Getenv("BILIGET_SESSDATA"); sess != "" {
		eff.Bilibili.Cookie = "SESSDATA=" + sess
	}
	return &eff
}

// Keys lists the settable keys in display order
func Keys() []string {
	return []string{
		"output_dir",
		"quality",
		"ffmpeg_path",
		"parallel_fetch",
		"bilibili.cookie",
		"bilibili.legacy_fallback",
		"bilibili.accept_numeric_ids",
	}
}

// Set assigns a value by dotted key, e.g. "bilibili.legacy_fallback"
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "output_dir":
		c.OutputDir = value
	case "quality":
		q, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("quality must be a number: %w", err)
		}
		c.Quality = q
	case "ffmpeg_path":
		c.FFmpegPath = value
	case "parallel_fetch":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parallel_fetch must be true or false: %w", err)
		}
		c.ParallelFetch = b
	case "bilibili.cookie":
		c.Bilibili.Cookie = value
	case "bilibili.legacy_fallback":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("legacy_fallback must be true or false: %w", err)
		}
		c.Bilibili.LegacyFallback = b
	case "bilibili.accept_numeric_ids":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("accept_numeric_ids must be true or false: %w", err)
		}
		c.Bilibili.AcceptNumericIDs = b
	default:
		return ErrUnknownKey
	}
	return nil
}

// ErrUnknownKey is returned by Set for keys not listed in Keys
var ErrUnknownKey = errors.New("unknown config key")
