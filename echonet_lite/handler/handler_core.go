package handler

import (
	"context"
	"errors"
	"log/slog"
)

// ErrCoreClosed はイベントループが終了していることを示す
var ErrCoreClosed = errors.New("handler core closed")

// HandlerCore は受信データ・タイマー・制御コマンドを1本のイベントループで直列に処理する
type HandlerCore struct {
	ctx    context.Context    // コンテキスト
	cancel context.CancelFunc // コンテキストのキャンセル関数
	events chan func()        // ループで実行する関数
	done   chan struct{}      // ループ終了通知
	Debug  bool               // デバッグモード
}

// NewHandlerCore は、HandlerCoreの新しいインスタンスを作成する
func NewHandlerCore(ctx context.Context, debug bool) *HandlerCore {
	coreCtx, cancel := context.WithCancel(ctx)
	return &HandlerCore{
		ctx:    coreCtx,
		cancel: cancel,
		events: make(chan func(), 256), // バッファサイズは256に設定
		done:   make(chan struct{}),
		Debug:  debug,
	}
}

// Run はイベントループを実行する。Close かコンテキストのキャンセルで戻る。
func (c *HandlerCore) Run() error {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case fn := <-c.events:
			c.invoke(fn)
		}
	}
}

func (c *HandlerCore) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("イベント処理中にpanicが発生", "panic", r)
		}
	}()
	fn()
}

// Post は fn をイベントループに積む。ループが終了していれば false。
func (c *HandlerCore) Post(fn func()) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// Do は fn をイベントループで実行し、完了まで待つ
func (c *HandlerCore) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !c.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrCoreClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrCoreClosed
	}
}

// Done はループが終了すると閉じられる
func (c *HandlerCore) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close は、イベントループを停止する
func (c *HandlerCore) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// SetDebug は、デバッグモードを設定する
func (c *HandlerCore) SetDebug(debug bool) {
	c.Debug = debug
}

// IsDebug は、現在のデバッグモードを返す
func (c *HandlerCore) IsDebug() bool {
	return c.Debug
}
