package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// teeHandler はファイルに全て書き、Warn 以上はコンソールにも短く書く
type teeHandler struct {
	file   slog.Handler
	logger *Logger
	attrs  []slog.Attr
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.file.Enabled(ctx, level) || level >= slog.LevelWarn
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.file.Enabled(ctx, r.Level) {
		err = h.file.Handle(ctx, r)
	}
	if r.Level >= slog.LevelWarn {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s", r.Level, r.Message)
		for _, a := range h.attrs {
			fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
			return true
		})
		sb.WriteByte('\n')
		h.logger.writeConsole([]byte(sb.String()))
	}
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &teeHandler{file: h.file.WithAttrs(attrs), logger: h.logger, attrs: merged}
}

// WithGroup はファイル側だけグループ化する
func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{file: h.file.WithGroup(name), logger: h.logger, attrs: h.attrs}
}
