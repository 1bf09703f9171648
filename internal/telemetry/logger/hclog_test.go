package logger

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestStdLogger_InfersLevels(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	std := StdLogger("memberlist", base)

	tests := []struct {
		line  string
		level string
	}{
		{"[DEBUG] memberlist: stream connection", "DEBUG"},
		{"[INFO] memberlist: joined", "INFO"},
		{"[WARN] memberlist: refuting suspect", "WARN"},
		{"[ERR] memberlist: failed to receive", "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			std.Print(tt.line)
			entry := decode(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
			if entry["component"] != "memberlist" {
				t.Errorf("component = %v", entry["component"])
			}
		})
	}
}

func TestHCLog_ForwardsArgs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	HCLog("memberlist", base).Warn("slow peer", "peer", "east")

	entry := decode(t, &buf)
	if entry["msg"] != "slow peer" || entry["peer"] != "east" || entry["level"] != "WARN" {
		t.Errorf("entry = %v", entry)
	}
}

func TestHCLog_LevelFilteringStaysWithSlog(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	HCLog("memberlist", base).Debug("noise")
	if buf.Len() != 0 {
		t.Errorf("debug entry passed a warn-level handler: %q", buf.String())
	}
}
