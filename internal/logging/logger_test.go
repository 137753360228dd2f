// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInitProducesJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("stream_id", "orders").Msg("stream created")

	out := buf.String()
	if !strings.Contains(out, `"stream_id":"orders"`) {
		t.Errorf("expected stream_id field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"stream created"`) {
		t.Errorf("expected message field in output, got %q", out)
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Msg("test")

	if !strings.Contains(buf.String(), "test") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	adapter := NewWatermillAdapter("changefeed")
	adapter.Info("message received", watermill.LogFields{"topic": "ledger.changes"})

	out := buf.String()
	if !strings.Contains(out, `"component":"changefeed"`) {
		t.Errorf("expected component field, got %q", out)
	}
	if !strings.Contains(out, `"topic":"ledger.changes"`) {
		t.Errorf("expected topic field, got %q", out)
	}
}

func TestWatermillAdapterWith(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	adapter := NewWatermillAdapter("changefeed").With(watermill.LogFields{"handler": "compactor"})
	adapter.Info("processed", nil)

	if !strings.Contains(buf.String(), `"handler":"compactor"`) {
		t.Errorf("expected handler field, got %q", buf.String())
	}
}
