package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocketClientTransport はWebSocketクライアントのネットワーク層を抽象化するインターフェース
type WebSocketClientTransport interface {
	// Connect はWebSocketサーバーに接続する
	Connect(ctx context.Context) error

	// Close は接続を閉じる
	Close() error

	// ReadMessage はWebSocketサーバーからメッセージを読み込む
	ReadMessage() ([]byte, error)

	// WriteMessage はWebSocketサーバーにメッセージを送信する
	WriteMessage(data []byte) error
}

// DefaultWebSocketClientTransport は WebSocketClientTransport インターフェースのデフォルト実装
type DefaultWebSocketClientTransport struct {
	url        string
	conn       *websocket.Conn
	dialer     *websocket.Dialer
	writeMutex sync.Mutex
}

// NewDefaultWebSocketClientTransport は DefaultWebSocketClientTransport の新しいインスタンスを作成する
func NewDefaultWebSocketClientTransport(serverURL string) (*DefaultWebSocketClientTransport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	return &DefaultWebSocketClientTransport{
		url:    serverURL,
		dialer: websocket.DefaultDialer,
	}, nil
}

// Connect はWebSocketサーバーに接続する
func (t *DefaultWebSocketClientTransport) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

// Close は接続を閉じる
func (t *DefaultWebSocketClientTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	t.writeMutex.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	t.writeMutex.Unlock()
	return t.conn.Close()
}

// ReadMessage はWebSocketサーバーからメッセージを読み込む
func (t *DefaultWebSocketClientTransport) ReadMessage() ([]byte, error) {
	if t.conn == nil {
		return nil, websocket.ErrCloseSent
	}
	_, data, err := t.conn.ReadMessage()
	return data, err
}

// WriteMessage はWebSocketサーバーにメッセージを送信する
func (t *DefaultWebSocketClientTransport) WriteMessage(data []byte) error {
	if t.conn == nil {
		return websocket.ErrCloseSent
	}
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}
