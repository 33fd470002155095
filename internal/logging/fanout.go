package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler duplicates records across the stdout, history and journal
// handlers so every destination sees the same stream.
type fanoutHandler struct {
	targets []slog.Handler
}

// newFanout combines handlers into one. Nil entries are dropped, and a
// single surviving handler is returned as-is.
func newFanout(targets ...slog.Handler) slog.Handler {
	kept := make([]slog.Handler, 0, len(targets))
	for _, h := range targets {
		if h != nil {
			kept = append(kept, h)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return &fanoutHandler{targets: kept}
}

// Enabled reports true when any destination would accept the level.
func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.targets {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every destination that accepts its level.
// One destination failing does not stop delivery to the rest.
func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.targets {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	targets := make([]slog.Handler, len(f.targets))
	for i, h := range f.targets {
		targets[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{targets: targets}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	targets := make([]slog.Handler, len(f.targets))
	for i, h := range f.targets {
		targets[i] = h.WithGroup(name)
	}
	return &fanoutHandler{targets: targets}
}
