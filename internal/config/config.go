package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend kinds
const (
	BackendHTTP     = "http"
	BackendOllama   = "ollama"
	BackendLlamaCPP = "llamacpp"
)

// Camera sources
const (
	SourceWebcam = "webcam"
	SourceFile   = "file"
)

// Config holds the application configuration
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Camera     CameraConfig     `yaml:"camera"`
	Processing ProcessingConfig `yaml:"processing"`
	Server     ServerConfig     `yaml:"server"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
}

// BackendConfig selects the detection backend
type BackendConfig struct {
	Kind  string `yaml:"kind"`
	URL   string `yaml:"url"`
	Model string `yaml:"model,omitempty"`
	// Timeout bounds each request; zero means no timeout
	Timeout time.Duration `yaml:"timeout"`
}

// CameraConfig holds configuration for the capture device
type CameraConfig struct {
	Source        string        `yaml:"source"`
	Device        int           `yaml:"device"`
	Path          string        `yaml:"path,omitempty"`
	FacingMode    string        `yaml:"facing_mode"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	FrameInterval time.Duration `yaml:"frame_interval,omitempty"`
	Quality       int           `yaml:"quality"`
}

// ProcessingConfig holds configuration for the crop and upload step
type ProcessingConfig struct {
	CropPercentage int `yaml:"crop_percentage"`
	JPEGQuality    int `yaml:"jpeg_quality"`
}

// ServerConfig holds configuration for the web surface
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OutputConfig holds configuration for saved results
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	SaveResults bool   `yaml:"save_results"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind: BackendHTTP,
			URL:  "http://localhost:8000",
		},
		Camera: CameraConfig{
			Source:     SourceWebcam,
			FacingMode: "environment",
			Width:      1920,
			Height:     1080,
			Quality:    90,
		},
		Processing: ProcessingConfig{
			CropPercentage: 70,
			JPEGQuality:    90,
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
		Output: OutputConfig{
			Dir: "./output",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML file; missing keys keep their defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains([]string{BackendHTTP, BackendOllama, BackendLlamaCPP}, c.Backend.Kind) {
		return fmt.Errorf("backend.kind must be one of http, ollama, llamacpp")
	}

	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout cannot be negative")
	}

	switch c.Camera.Source {
	case SourceWebcam:
		if c.Camera.Device < 0 {
			return fmt.Errorf("camera.device cannot be negative")
		}
	case SourceFile:
		if c.Camera.Path == "" {
			return fmt.Errorf("camera.path is required for the file source")
		}
	default:
		return fmt.Errorf("camera.source must be webcam or file")
	}

	if c.Camera.FacingMode != "environment" && c.Camera.FacingMode != "user" {
		return fmt.Errorf("camera.facing_mode must be environment or user")
	}

	if c.Camera.Width < 1 || c.Camera.Height < 1 {
		return fmt.Errorf("camera.width and camera.height must be positive")
	}

	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("camera.quality must be between 1 and 100")
	}

	if c.Processing.CropPercentage < 1 || c.Processing.CropPercentage > 100 {
		return fmt.Errorf("processing.crop_percentage must be between 1 and 100")
	}

	if c.Processing.JPEGQuality < 1 || c.Processing.JPEGQuality > 100 {
		return fmt.Errorf("processing.jpeg_quality must be between 1 and 100")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Output.SaveResults && c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required when output.save_results is set")
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "plastic-detector", "config.yaml")
}
