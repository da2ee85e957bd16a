package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerRedactsSensitiveFields(t *testing.T) {
	l := Logger()
	original := l.Out
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(original)

	if err := ConfigureLogger("info", "json"); err != nil {
		t.Fatalf("ConfigureLogger: %v", err)
	}
	l.WithField("refresh_token", "abc.def").WithField("user_id", "u1").Info("login")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["refresh_token"] != "***" {
		t.Fatalf("token not redacted: %v", entry["refresh_token"])
	}
	if entry["user_id"] != "u1" || entry["msg"] != "login" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts field")
	}
}

func TestConfigureLoggerRejectsUnknownLevel(t *testing.T) {
	if err := ConfigureLogger("loud", "json"); err == nil {
		t.Fatalf("expected error")
	}
}
