package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type failingHandler struct {
	slog.Handler
}

func (f *failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink closed")
}

func TestFanoutDeliversToEveryDestination(t *testing.T) {
	var a, b bytes.Buffer
	h := newFanout(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	slog.New(h).Info("frame dropped", "count", 3)

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		if !strings.Contains(buf.String(), "frame dropped") {
			t.Errorf("%s destination missed the record: %q", name, buf.String())
		}
	}
}

func TestFanoutRespectsPerDestinationLevels(t *testing.T) {
	var quiet, chatty bytes.Buffer
	h := newFanout(
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&chatty, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled must be true while any destination accepts the level")
	}

	slog.New(h).Debug("settle timer armed")
	if quiet.Len() != 0 {
		t.Errorf("error-only destination received a debug record: %q", quiet.String())
	}
	if !strings.Contains(chatty.String(), "settle timer armed") {
		t.Error("debug destination missed the record")
	}
}

func TestFanoutFailureDoesNotStopDelivery(t *testing.T) {
	var out bytes.Buffer
	inner := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})
	h := newFanout(&failingHandler{Handler: inner}, inner)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "encoder exited", 0)
	if err := h.Handle(context.Background(), r); err == nil {
		t.Error("Handle swallowed the destination error")
	}
	if !strings.Contains(out.String(), "encoder exited") {
		t.Error("healthy destination missed the record after a peer failed")
	}
}

func TestFanoutDropsNilAndUnwrapsSingle(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	if got := newFanout(nil, inner, nil); got != slog.Handler(inner) {
		t.Errorf("single surviving handler not returned directly: %T", got)
	}
}
