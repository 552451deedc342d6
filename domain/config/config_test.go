package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration Duration
		wantJSON string
	}{
		{"zero value", Duration(0), `"0s"`},
		{"5 seconds", Duration(5 * time.Second), `"5s"`},
		{"1 minute 30 seconds", Duration(90 * time.Second), `"1m30s"`},
		{"milliseconds", Duration(200 * time.Millisecond), `"200ms"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tt.duration)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tt.wantJSON {
				t.Errorf("Marshal = %s, want %s", data, tt.wantJSON)
			}

			var got Duration
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if got != tt.duration {
				t.Errorf("Unmarshal = %v, want %v", got, tt.duration)
			}
		})
	}
}

func TestDuration_JSONErrors(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for invalid duration")
	}

	d = Duration(time.Second)
	if err := json.Unmarshal([]byte(`null`), &d); err != nil {
		t.Errorf("null should be accepted, got %v", err)
	}
	if d != Duration(time.Second) {
		t.Errorf("null should leave value unchanged, got %v", d)
	}
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var cfg struct {
		Timeout Duration `yaml:"timeout"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 250ms\n"), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.Timeout.Duration() != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want 250ms", cfg.Timeout.Duration())
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != "timeout: 250ms\n" {
		t.Errorf("Marshal = %q", out)
	}

	if err := yaml.Unmarshal([]byte("timeout: later\n"), &cfg); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Server.Addr != ":6900" {
		t.Errorf("Server.Addr = %q, want :6900", cfg.Server.Addr)
	}
	if cfg.Server.FactsAddr != ":8000" {
		t.Errorf("Server.FactsAddr = %q, want :8000", cfg.Server.FactsAddr)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Publisher.Mode != PublisherLocal {
		t.Errorf("Publisher.Mode = %q, want local", cfg.Publisher.Mode)
	}
	if cfg.Publisher.Timeout.Duration() != 10*time.Second {
		t.Errorf("Publisher.Timeout = %v, want 10s", cfg.Publisher.Timeout.Duration())
	}
	if cfg.Facts.LatencyBudgetMs != 2000 || cfg.Facts.MaxTokens != 4000 {
		t.Errorf("unexpected facts defaults: %+v", cfg.Facts)
	}

	if errs := NewValidator().Validate(&cfg); errs.HasErrors() {
		t.Errorf("default config should be valid, got %v", errs)
	}
}
