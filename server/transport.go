package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// クライアントへの書き込みの期限
	writeWait = 10 * time.Second
	// pong を待つ時間
	pongWait = 60 * time.Second
	// ping を送る間隔。pongWait より短くなければならない
	pingPeriod = (pongWait * 9) / 10
)

// StartOptions は HTTP サーバーの起動オプションを表す
type StartOptions struct {
	// TLS証明書ファイルのパス (TLSを使用する場合)
	CertFile string
	// TLS秘密鍵ファイルのパス (TLSを使用する場合)
	KeyFile string
	// 待ち受けを始めたら閉じられる
	Ready chan struct{}
}

// WebSocketTransport はWebSocketサーバーのネットワーク層を抽象化するインターフェース
type WebSocketTransport interface {
	// Start はWebSocketサーバーを起動する
	Start(options StartOptions) error

	// Stop はWebSocketサーバーを停止する
	Stop() error

	// SetMessageHandler はクライアントからメッセージを受信した時に呼び出されるハンドラを設定する
	// connID はクライアント接続を識別するための一意なID
	SetMessageHandler(handler func(connID string, message []byte) error)

	// SetConnectHandler は新しいクライアントが接続した時に呼び出されるハンドラを設定する
	SetConnectHandler(handler func(connID string) error)

	// SetDisconnectHandler はクライアントが切断した時に呼び出されるハンドラを設定する
	SetDisconnectHandler(handler func(connID string))

	// SendMessage は特定のクライアントにメッセージを送信する
	SendMessage(connID string, message []byte) error

	// BroadcastMessage は接続中の全クライアントにメッセージを送信する
	BroadcastMessage(message []byte) error
}

// clientConnection は書き込みを直列化するためのミューテックス付きの接続
type clientConnection struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func (c *clientConnection) write(messageType int, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// DefaultWebSocketTransport は WebSocketTransport インターフェースのデフォルト実装
type DefaultWebSocketTransport struct {
	ctx               context.Context
	cancel            context.CancelFunc
	server            *http.Server
	mux               *http.ServeMux
	upgrader          websocket.Upgrader
	listener          net.Listener
	clients           map[string]*clientConnection
	clientsMutex      sync.RWMutex
	messageHandler    func(connID string, message []byte) error
	connectHandler    func(connID string) error
	disconnectHandler func(connID string)
}

// NewDefaultWebSocketTransport は DefaultWebSocketTransport の新しいインスタンスを作成する
func NewDefaultWebSocketTransport(ctx context.Context, addr string) *DefaultWebSocketTransport {
	transportCtx, cancel := context.WithCancel(ctx)

	transport := &DefaultWebSocketTransport{
		ctx:    transportCtx,
		cancel: cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*clientConnection),
		mux:     http.NewServeMux(),
	}
	transport.mux.HandleFunc("/ws", transport.handleWebSocket)

	transport.server = &http.Server{
		Addr:              addr,
		Handler:           transport.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return transport
}

// Handle は /ws 以外のハンドラを追加する。Start の前に呼ぶこと。
func (t *DefaultWebSocketTransport) Handle(pattern string, handler http.Handler) {
	t.mux.Handle(pattern, handler)
}

// Addr は待ち受け中のアドレスを返す。Start 前は設定値を返す。
func (t *DefaultWebSocketTransport) Addr() string {
	t.clientsMutex.RLock()
	defer t.clientsMutex.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.server.Addr
}

// ClientCount は接続中のクライアント数を返す
func (t *DefaultWebSocketTransport) ClientCount() int {
	t.clientsMutex.RLock()
	defer t.clientsMutex.RUnlock()
	return len(t.clients)
}

// Start はWebSocketサーバーを起動する。Stop されるまで戻らない。
func (t *DefaultWebSocketTransport) Start(options StartOptions) error {
	// 先にリスナーをバインド
	listener, err := net.Listen("tcp", t.server.Addr)
	if err != nil {
		return err
	}
	t.clientsMutex.Lock()
	t.listener = listener
	t.clientsMutex.Unlock()

	// 待ち受け完了を通知
	if options.Ready != nil {
		close(options.Ready)
	}
	slog.Info("HTTP server starting", "addr", listener.Addr().String())

	if options.CertFile != "" && options.KeyFile != "" {
		slog.Info("Using TLS with certificate", "certFile", options.CertFile)
		err = t.server.ServeTLS(listener, options.CertFile, options.KeyFile)
	} else {
		err = t.server.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop はWebSocketサーバーを停止する
func (t *DefaultWebSocketTransport) Stop() error {
	slog.Info("Stopping HTTP server", "addr", t.server.Addr)
	t.cancel()

	// Shutdown は WebSocket のような乗っ取られた接続を待たないので自分で閉じる
	t.clientsMutex.Lock()
	for _, client := range t.clients {
		_ = client.conn.Close()
	}
	t.clientsMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.server.Shutdown(ctx)
	if err != nil {
		slog.Info("Error shutting down HTTP server", "err", err)
	}
	return err
}

func (t *DefaultWebSocketTransport) SetMessageHandler(handler func(connID string, message []byte) error) {
	t.messageHandler = handler
}

func (t *DefaultWebSocketTransport) SetConnectHandler(handler func(connID string) error) {
	t.connectHandler = handler
}

func (t *DefaultWebSocketTransport) SetDisconnectHandler(handler func(connID string)) {
	t.disconnectHandler = handler
}

// isConnectionClosedError は接続が閉じられたことによるエラーかどうかを返す
func isConnectionClosedError(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// removeClient はクライアントを取り除き、切断ハンドラを呼ぶ。
// 既に取り除かれていた場合は false を返す。
func (t *DefaultWebSocketTransport) removeClient(connID string) bool {
	t.clientsMutex.Lock()
	_, exists := t.clients[connID]
	delete(t.clients, connID)
	t.clientsMutex.Unlock()

	if !exists {
		return false
	}
	if t.disconnectHandler != nil && t.ctx.Err() == nil {
		t.disconnectHandler(connID)
	}
	return true
}

// SendMessage は特定のクライアントにメッセージを送信する
func (t *DefaultWebSocketTransport) SendMessage(connID string, message []byte) error {
	t.clientsMutex.RLock()
	client, exists := t.clients[connID]
	t.clientsMutex.RUnlock()

	if !exists {
		return fmt.Errorf("client with ID %s not found", connID)
	}

	if err := client.write(websocket.TextMessage, message); err != nil {
		if isConnectionClosedError(err) {
			t.removeClient(connID)
		}
		return fmt.Errorf("failed to send message to client %s: %w", connID, err)
	}
	return nil
}

// BroadcastMessage は接続中の全クライアントにメッセージを送信する
func (t *DefaultWebSocketTransport) BroadcastMessage(message []byte) error {
	t.clientsMutex.RLock()
	clients := make(map[string]*clientConnection, len(t.clients))
	for connID, client := range t.clients {
		clients[connID] = client
	}
	t.clientsMutex.RUnlock()

	var disconnectedClients []string
	for connID, client := range clients {
		if err := client.write(websocket.TextMessage, message); err != nil {
			if isConnectionClosedError(err) {
				disconnectedClients = append(disconnectedClients, connID)
			} else {
				// Warn 以上はログ通知としてまた配信されるので Debug に留める
				slog.Debug("Error broadcasting message to client", "err", err, "connID", connID)
			}
		}
	}

	for _, connID := range disconnectedClients {
		t.removeClient(connID)
	}
	return nil
}

// pingLoop は接続が生きているかを確認するため定期的に ping を送る
func (t *DefaultWebSocketTransport) pingLoop(client *clientConnection, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			client.mutex.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			client.mutex.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleWebSocket はWebSocket接続を処理する
func (t *DefaultWebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading to WebSocket", "err", err, "remote_addr", r.RemoteAddr)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	client := &clientConnection{conn: conn}
	t.clientsMutex.Lock()
	t.clients[connID] = client
	t.clientsMutex.Unlock()
	defer t.removeClient(connID)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go t.pingLoop(client, done)

	if t.connectHandler != nil {
		if err := t.connectHandler(connID); err != nil {
			slog.Error("Error in connect handler", "err", err)
			return
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				slog.Error("Unexpected WebSocket close error", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if t.messageHandler != nil {
			if err := t.messageHandler(connID, message); err != nil && !isConnectionClosedError(err) {
				slog.Error("Error in message handler", "err", err, "connID", connID)
			}
		}
	}
}
