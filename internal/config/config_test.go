package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

func TestLoadFromFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `backend:
  kind: ollama
  url: http://gpu-box:11434
  timeout: 90s
camera:
  source: file
  path: ./samples
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Backend.Kind != BackendOllama || cfg.Backend.Timeout != 90*time.Second {
		t.Errorf("Unexpected backend: %+v", cfg.Backend)
	}
	if cfg.Camera.Source != SourceFile || cfg.Camera.Width != 1920 {
		t.Errorf("Unexpected camera: %+v", cfg.Camera)
	}
	if cfg.Processing.CropPercentage != 70 {
		t.Errorf("Expected default crop percentage, got %d", cfg.Processing.CropPercentage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Loaded config is invalid: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Server.Addr = ":8081"
	cfg.Backend.Timeout = 2 * time.Minute
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Server.Addr != ":8081" || loaded.Backend.Timeout != 2*time.Minute {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("backend: [unclosed"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend.Kind = "grpc" }, "backend.kind"},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -time.Second }, "backend.timeout"},
		{"file without path", func(c *Config) { c.Camera.Source = SourceFile }, "camera.path"},
		{"unknown source", func(c *Config) { c.Camera.Source = "rtsp" }, "camera.source"},
		{"facing mode", func(c *Config) { c.Camera.FacingMode = "left" }, "camera.facing_mode"},
		{"crop too large", func(c *Config) { c.Processing.CropPercentage = 120 }, "processing.crop_percentage"},
		{"quality zero", func(c *Config) { c.Processing.JPEGQuality = 0 }, "processing.jpeg_quality"},
		{"save without dir", func(c *Config) { c.Output.SaveResults = true; c.Output.Dir = "" }, "output.dir"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error mentioning %s, got %v", tt.field, err)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), "config.yaml") {
		t.Errorf("Unexpected config path %s", GetConfigPath())
	}
}
