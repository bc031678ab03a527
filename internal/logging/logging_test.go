package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/svaia/api/internal/config"
)

func TestNewWriter_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("project", "P1").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "shown" || entry["project"] != "P1" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(config.LogConfig{Level: "loud"}, &buf)

	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered, got %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Error("info should be written")
	}
}

func TestAsynqLevel(t *testing.T) {
	cases := map[string]asynq.LogLevel{
		"debug": asynq.DebugLevel,
		"WARN":  asynq.WarnLevel,
		"error": asynq.ErrorLevel,
		"":      asynq.InfoLevel,
	}
	for in, want := range cases {
		if got := AsynqLevel(in); got != want {
			t.Errorf("AsynqLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
