package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.DataDir == "" {
		t.Error("default data dir is empty")
	}
	if cfg.RowDelay != "500ms" {
		t.Errorf("default row delay = %q", cfg.RowDelay)
	}
}

func TestParseDurationOrDisable(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 500 * time.Millisecond, false},
		{"0", 0, false},
		{"off", 0, false},
		{"disable", 0, false},
		{"250ms", 250 * time.Millisecond, false},
		{"2s", 2 * time.Second, false},
		{"garbage", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDurationOrDisable(tt.in, 500*time.Millisecond)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDurationOrDisable(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDurationOrDisable(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDurationOrDisable(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("PROMPTBENCH_DATA_DIR", "/tmp/pbdata")
	t.Setenv("PROMPTBENCH_ROW_DELAY", "0")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")

	cfg := Defaults()
	mergeEnv(cfg)

	if cfg.DataDir != "/tmp/pbdata" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.RowDelay != "0" {
		t.Errorf("row delay = %q", cfg.RowDelay)
	}
	if cfg.OTELEndpoint != "http://localhost:4318" {
		t.Errorf("otel endpoint = %q", cfg.OTELEndpoint)
	}
}

func TestMergeFile(t *testing.T) {
	cfg := Defaults()
	origDataDir := cfg.DataDir

	mergeFile(cfg, &Config{RowDelay: "1s", OpenAIBaseURL: "http://proxy:8080/v1"})

	if cfg.RowDelay != "1s" {
		t.Errorf("row delay = %q", cfg.RowDelay)
	}
	if cfg.OpenAIBaseURL != "http://proxy:8080/v1" {
		t.Errorf("openai base url = %q", cfg.OpenAIBaseURL)
	}
	// Zero values in the file leave defaults alone.
	if cfg.DataDir != origDataDir {
		t.Errorf("data dir changed to %q", cfg.DataDir)
	}
}
