package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", &buf)
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", l.GetLevel())
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("not-a-level", &buf)
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", l.GetLevel())
	}
}

func TestNewUsesJSONForNonTerminalOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", &buf)
	l.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON-formatted line, got %q", buf.String())
	}
}

func TestComponentTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", &buf)
	e := Component(l, "peercore")
	e.Info("started")
	if !strings.Contains(buf.String(), `"component":"peercore"`) {
		t.Fatalf("expected component field, got %q", buf.String())
	}
}
