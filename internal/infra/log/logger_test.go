package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod")
	logger.Debug().Msg("скрыто")
	logger.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали одну JSON-строку: %v (%s)", err, buf.String())
	}
	if entry["service"] != "automation-engine" || entry["component"] != "test" {
		t.Fatalf("неожиданные поля: %v", entry)
	}
}
