package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/agent-registry/domain/config"
)

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	lookup := envMap(map[string]string{
		"HOST":  "db.internal",
		"EMPTY": "",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bracket syntax", "${HOST}", "db.internal"},
		{"embedded in text", "mongodb://${HOST}:27017", "mongodb://db.internal:27017"},
		{"multiple variables", "${HOST} ${HOST}", "db.internal db.internal"},
		{"unset expands empty", "x${UNSET}y", "xy"},
		{"default when unset", "${UNSET:-fallback}", "fallback"},
		{"default when empty", "${EMPTY:-fallback}", "fallback"},
		{"default ignored when set", "${HOST:-fallback}", "db.internal"},
		{"bare dollar kept", "pa$$word$HOST", "pa$$word$HOST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{lookup: lookup}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Required(t *testing.T) {
	t.Parallel()

	e := &envExpander{lookup: envMap(nil)}
	_, err := e.Expand("${ATLAS:?mongo connection string}")
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Fatalf("expected ErrMissingEnvVar, got %v", err)
	}
}

func TestEnvExpander_Strict(t *testing.T) {
	t.Parallel()

	e := &envExpander{strict: true, lookup: envMap(nil)}
	if _, err := e.Expand("${UNSET}"); !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("strict: expected ErrMissingEnvVar, got %v", err)
	}
	if got, err := e.Expand("${UNSET:-ok}"); err != nil || got != "ok" {
		t.Errorf("strict with default = %q, %v", got, err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("REGISTRY_TEST_HOST", "example.com")

	if got := ExpandEnv("https://${REGISTRY_TEST_HOST}"); got != "https://example.com" {
		t.Errorf("ExpandEnv = %q", got)
	}
	if _, err := ExpandEnvStrict("${REGISTRY_TEST_UNSET}"); err == nil {
		t.Error("ExpandEnvStrict should fail for unset variable")
	}
}
