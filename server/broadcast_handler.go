package server

import (
	"context"
	"echonet-node/protocol"
	"fmt"
	"log/slog"
	"time"
)

// Notifier は通知をクライアントに配信する。Notify はブロックしてはならない。
type Notifier interface {
	Notify(msg protocol.NotificationMessage)
}

// BroadcastHandler は minLevel 以上のログを WebSocket のクライアントにも配信するハンドラー
type BroadcastHandler struct {
	inner    slog.Handler
	notifier Notifier
	minLevel slog.Level
	attrs    []slog.Attr
}

func NewBroadcastHandler(inner slog.Handler, notifier Notifier, minLevel slog.Level) *BroadcastHandler {
	return &BroadcastHandler{
		inner:    inner,
		notifier: notifier,
		minLevel: minLevel,
	}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level) || (h.notifier != nil && level >= h.minLevel)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if r.Level >= h.minLevel && h.notifier != nil {
		h.broadcastLog(r)
	}
	return err
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &BroadcastHandler{
		inner:    h.inner.WithAttrs(attrs),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    merged,
	}
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	return &BroadcastHandler{
		inner:    h.inner.WithGroup(name),
		notifier: h.notifier,
		minLevel: h.minLevel,
		attrs:    h.attrs,
	}
}

// formatAttributeValue は属性の値を JSON にできる形にする
func formatAttributeValue(v slog.Value) interface{} {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		switch a := v.Any().(type) {
		case nil:
			return nil
		case error:
			return a.Error()
		case fmt.Stringer:
			return a.String()
		}
	}
	// Duration やグループなど
	return v.String()
}

// broadcastLog はログレコードを通知として配信する
func (h *BroadcastHandler) broadcastLog(r slog.Record) {
	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = formatAttributeValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = formatAttributeValue(a.Value)
		return true
	})

	h.notifier.Notify(protocol.NewNotification(protocol.EventLog, protocol.LogNotification{
		Level:      r.Level.String(),
		Message:    r.Message,
		Time:       r.Time.Format(time.RFC3339),
		Attributes: attrs,
	}))
}
