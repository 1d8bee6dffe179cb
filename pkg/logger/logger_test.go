package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithUserID(ctx, "u-123")
	ctx = log.WithEntity(ctx, "shopping_items", "item-9")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"user_id\"", "\"table\"", "\"key\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s to be preserved; entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWithFieldsAccumulate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithField(context.Background(), "group_id", "g-1")
	ctx = log.WithFields(ctx, map[string]any{"path": "groups/g-1"})
	log.Info(ctx, "merged")

	if !bytes.Contains(buf.Bytes(), []byte("\"group_id\":\"g-1\"")) {
		t.Fatalf("expected group_id field; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"path\":\"groups/g-1\"")) {
		t.Fatalf("expected path field; entry=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.NoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.NoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
}
