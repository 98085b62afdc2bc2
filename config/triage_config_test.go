package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"triage_server/pkg/apperr"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("GOOGLE_CLIENT_ID", "client")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchLimit != 25 {
		t.Errorf("BatchLimit = %d, want 25", cfg.BatchLimit)
	}
	if cfg.BodyMaxChars != 5000 {
		t.Errorf("BodyMaxChars = %d, want 5000", cfg.BodyMaxChars)
	}
	if cfg.ExampleCacheTTL != 6*time.Hour {
		t.Errorf("ExampleCacheTTL = %v, want 6h", cfg.ExampleCacheTTL)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Errorf("LLMTemperature = %v, want 0.2", cfg.LLMTemperature)
	}
	if len(cfg.DefaultLabels) != 4 {
		t.Errorf("DefaultLabels = %v, want 4 entries", cfg.DefaultLabels)
	}
	if !cfg.PreserveUnreadOnManual {
		t.Error("PreserveUnreadOnManual should default to true")
	}
	if !cfg.HasSink(SinkMongo) || cfg.HasSink(SinkNeo4j) {
		t.Errorf("Sinks = %v, want only mongo", cfg.Sinks)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero batch limit", map[string]string{"BATCH_LIMIT": "0"}},
		{"negative batch limit", map[string]string{"BATCH_LIMIT": "-3"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "bard"}},
		{"vertex without project", map[string]string{"LLM_PROVIDER": "vertex"}},
		{"unknown sink", map[string]string{"RESULT_SINKS": "sheets"}},
		{"postgres without url", map[string]string{"RESULT_SINKS": "postgres"}},
		{"graph only", map[string]string{"RESULT_SINKS": "neo4j", "NEO4J_URL": "bolt://localhost:7687"}},
		{"confidence out of range", map[string]string{"MIN_CONFIDENCE": "11"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() should fail")
			}
			var appErr *apperr.AppError
			if !errors.As(err, &appErr) || appErr.Code != apperr.CodeConfigError {
				t.Errorf("Load() error = %v, want CONFIG_ERROR", err)
			}
		})
	}
}

func TestLoadMissingMailboxCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "")

	if _, err := Load(); !apperr.IsConfig(err) {
		t.Errorf("Load() error = %v, want config error", err)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	setRequired(t)
	t.Cleanup(func() { fileValues = nil })

	path := filepath.Join(t.TempDir(), "triage.yaml")
	content := []byte(`
processed_label: GeminiProcessed
batch_limit: 7
excluded_label_prefixes:
  - AI-Old-
  - Archive-
mark_read_on_apply: true
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BATCH_LIMIT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProcessedLabel != "GeminiProcessed" {
		t.Errorf("ProcessedLabel = %q, want GeminiProcessed", cfg.ProcessedLabel)
	}
	if cfg.BatchLimit != 3 {
		t.Errorf("BatchLimit = %d, env should override file", cfg.BatchLimit)
	}
	if len(cfg.ExcludedPrefixes) != 2 || cfg.ExcludedPrefixes[1] != "Archive-" {
		t.Errorf("ExcludedPrefixes = %v", cfg.ExcludedPrefixes)
	}
	if !cfg.MarkReadOnApply {
		t.Error("MarkReadOnApply should be read from file")
	}
}

func TestGetEnvSliceTrims(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	got := getEnvSlice("TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("getEnvSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvSlice()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
