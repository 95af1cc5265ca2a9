package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithWriter_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("modeld", logrus.InfoLevel, &buf)

	log.Info("starting up")

	out := buf.String()
	if !strings.Contains(out, "component=modeld") {
		t.Errorf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, "starting up") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("modeld", logrus.WarnLevel, &buf)

	log.Debug("should not appear")
	log.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("debug message leaked through a Warn-level logger")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("expected warn message in output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"not-a-level", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
