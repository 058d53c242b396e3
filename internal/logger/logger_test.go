package logger

import (
	"testing"

	"github.com/lalitcap23/defess-v3/internal/config"
)

func TestNew_FallsBackOnBadLevelAndEncoding(t *testing.T) {
	l, err := New(config.LogConfig{Level: "loud", Encoding: "xml"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !l.Core().Enabled(0) {
		t.Fatalf("info level should be enabled")
	}
	if l.Core().Enabled(-1) {
		t.Fatalf("debug level should be disabled")
	}
}

func TestNew_Debug(t *testing.T) {
	l, err := New(config.LogConfig{Level: "DEBUG", Encoding: "json"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatalf("debug level should be enabled")
	}
}

func TestBaseFields(t *testing.T) {
	fields := baseFields(config.LogConfig{Service: " defess-test "})
	if len(fields) != 1 || fields[0].Key != "service" || fields[0].String != "defess-test" {
		t.Fatalf("fields=%+v", fields)
	}
	if got := baseFields(config.LogConfig{}); len(got) != 0 {
		t.Fatalf("empty service should add no fields: %+v", got)
	}
}
