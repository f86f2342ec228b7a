package client

import (
	"context"
	"echonet-node/protocol"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// 受信した通知の保持数。あふれた通知は捨てる
const notificationBufferSize = 64

var ErrClosed = errors.New("connection closed")

// Response はサーバーからのレスポンス。Data は受け取ったままの JSON
type Response struct {
	ID      string
	Success bool
	Data    json.RawMessage
	Error   string
}

// Notification はサーバーからの通知。Data は受け取ったままの JSON
type Notification struct {
	Event string
	Data  json.RawMessage
}

// envelope は受信メッセージの全種別のフィールドを持つ
type envelope struct {
	protocol.Message
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Event   string          `json:"event"`
}

// WebSocketClient はノードの WebSocket 窓口にコマンドを送り、通知を受け取る
type WebSocketClient struct {
	transport       WebSocketClientTransport
	requestID       int
	requestIDMutex  sync.Mutex
	responseCh      map[string]chan Response
	responseChMutex sync.Mutex
	notifications   chan Notification
	done            chan struct{}
	closeOnce       sync.Once
}

// NewWebSocketClient は serverURL (ws://host:port/ws) に接続するクライアントを作る
func NewWebSocketClient(serverURL string) (*WebSocketClient, error) {
	transport, err := NewDefaultWebSocketClientTransport(serverURL)
	if err != nil {
		return nil, err
	}
	return NewWebSocketClientWithTransport(transport), nil
}

// NewWebSocketClientWithTransport は任意のトランスポートでクライアントを作る
func NewWebSocketClientWithTransport(transport WebSocketClientTransport) *WebSocketClient {
	return &WebSocketClient{
		transport:     transport,
		responseCh:    make(map[string]chan Response),
		notifications: make(chan Notification, notificationBufferSize),
		done:          make(chan struct{}),
	}
}

// Connect はサーバーに接続し、受信を始める
func (c *WebSocketClient) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("error connecting to WebSocket server: %w", err)
	}
	go c.listenForMessages()
	return nil
}

// Close は接続を閉じる
func (c *WebSocketClient) Close() error {
	return c.transport.Close()
}

// Done は受信が終わると閉じられる
func (c *WebSocketClient) Done() <-chan struct{} {
	return c.done
}

// Notifications は通知を受け取るチャンネルを返す。受信が終わると閉じられる
func (c *WebSocketClient) Notifications() <-chan Notification {
	return c.notifications
}

func (c *WebSocketClient) listenForMessages() {
	defer c.closeOnce.Do(func() {
		close(c.done)
		close(c.notifications)
	})
	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			slog.Debug("Error reading message", "err", err)
			return
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Error parsing message", "err", err)
			continue
		}

		switch msg.Type {
		case protocol.MessageTypeResponse:
			c.responseChMutex.Lock()
			ch, ok := c.responseCh[msg.ID]
			delete(c.responseCh, msg.ID)
			c.responseChMutex.Unlock()
			if ok {
				ch <- Response{ID: msg.ID, Success: msg.Success, Data: msg.Data, Error: msg.Error}
			}
		case protocol.MessageTypeNotification:
			select {
			case c.notifications <- Notification{Event: msg.Event, Data: msg.Data}:
			default:
				slog.Debug("通知を捨てました", "event", msg.Event)
			}
		}
	}
}

// Command はコマンドを送り、レスポンスを待つ。
// サーバーが失敗を返した場合もエラーにはせず、Response.Success で判断する。
func (c *WebSocketClient) Command(ctx context.Context, command string) (Response, error) {
	c.requestIDMutex.Lock()
	c.requestID++
	requestID := fmt.Sprintf("req-%d", c.requestID)
	c.requestIDMutex.Unlock()

	responseCh := make(chan Response, 1)
	c.responseChMutex.Lock()
	c.responseCh[requestID] = responseCh
	c.responseChMutex.Unlock()
	defer func() {
		c.responseChMutex.Lock()
		delete(c.responseCh, requestID)
		c.responseChMutex.Unlock()
	}()

	data, err := json.Marshal(protocol.CommandMessage{
		Message: protocol.Message{Type: protocol.MessageTypeCommand, ID: requestID},
		Command: command,
	})
	if err != nil {
		return Response{}, fmt.Errorf("error creating message: %w", err)
	}
	if err := c.transport.WriteMessage(data); err != nil {
		return Response{}, fmt.Errorf("error sending message: %w", err)
	}

	select {
	case res := <-responseCh:
		return res, nil
	case <-c.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (c *WebSocketClient) call(ctx context.Context, command string) (json.RawMessage, error) {
	res, err := c.Command(ctx, command)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%s: %s", command, res.Error)
	}
	return res.Data, nil
}

// Search はノードに発見要求の送信を頼む
func (c *WebSocketClient) Search(ctx context.Context) error {
	_, err := c.call(ctx, "search")
	return err
}

// ListNodes はノードが知っているノードとデバイスの一覧を返す
func (c *WebSocketClient) ListNodes(ctx context.Context) ([]protocol.NodeInfo, error) {
	data, err := c.call(ctx, "list_nodes")
	if err != nil {
		return nil, err
	}
	var nodes []protocol.NodeInfo
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("list_nodes: %w", err)
	}
	return nodes, nil
}

// Shutdown はノードを停止させる
func (c *WebSocketClient) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, "shutdown")
	return err
}
