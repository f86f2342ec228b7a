package server

import (
	"context"
	"echonet-node/echonet_lite/handler"
	"echonet-node/protocol"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/exp/slices"
)

const (
	// 通知の送信待ちの上限。あふれた通知は捨てる
	notificationQueueSize = 256
	// コマンド処理の期限
	commandTimeout = 5 * time.Second
)

var ErrUnknownCommand = errors.New("unknown command")

// NodeController は WebSocket から操作するノードの機能
type NodeController interface {
	Search(ctx context.Context) error
	ListNodes(ctx context.Context) ([]handler.NodeSnapshot, error)
	OnProperty(fn handler.PropertyObserver)
	OnDeviceEvent(fn handler.DeviceObserver)
}

type commandFunc func(ctx context.Context) (interface{}, error)

// WebSocketServer はノードのイベントを配信し、クライアントのコマンドを受け付ける
type WebSocketServer struct {
	ctx       context.Context
	cancel    context.CancelFunc
	transport WebSocketTransport
	node      NodeController
	shutdown  func()
	queue     chan protocol.NotificationMessage
	commands  map[string]commandFunc
	done      chan struct{}
}

// NewWebSocketServer は WebSocketServer を作成し、ノードのオブザーバーを登録する。
// shutdown は "shutdown" コマンドで呼ばれる。
func NewWebSocketServer(ctx context.Context, transport WebSocketTransport, node NodeController, shutdown func()) *WebSocketServer {
	serverCtx, cancel := context.WithCancel(ctx)
	ws := &WebSocketServer{
		ctx:       serverCtx,
		cancel:    cancel,
		transport: transport,
		node:      node,
		shutdown:  shutdown,
		queue:     make(chan protocol.NotificationMessage, notificationQueueSize),
		done:      make(chan struct{}),
	}
	ws.commands = map[string]commandFunc{
		"search":     ws.handleSearch,
		"list_nodes": ws.handleListNodes,
		"shutdown":   ws.handleShutdown,
		"help":       ws.handleHelp,
	}

	transport.SetConnectHandler(ws.handleClientConnect)
	transport.SetMessageHandler(ws.handleClientMessage)
	transport.SetDisconnectHandler(ws.handleClientDisconnect)

	// オブザーバーはイベントループで呼ばれるので、キューに積むだけにする
	node.OnProperty(func(ev handler.PropertyEvent) {
		ws.Notify(protocol.ConvertPropertyEvent(ev))
	})
	node.OnDeviceEvent(func(ev handler.DeviceEvent) {
		ws.Notify(protocol.ConvertDeviceEvent(ev))
	})

	go ws.broadcastLoop()
	return ws
}

// Start はサーバーを起動する。Stop されるまで戻らない。
func (ws *WebSocketServer) Start(options StartOptions) error {
	return ws.transport.Start(options)
}

// Stop はサーバーを停止する
func (ws *WebSocketServer) Stop() error {
	ws.cancel()
	<-ws.done
	return ws.transport.Stop()
}

// Notify は通知を配信キューに積む。キューがいっぱいなら捨てる。
// どのゴルーチンからでも呼べて、ブロックしない。
func (ws *WebSocketServer) Notify(msg protocol.NotificationMessage) {
	select {
	case ws.queue <- msg:
	default:
		slog.Debug("通知キューがいっぱいのため捨てました", "event", msg.Event)
	}
}

func (ws *WebSocketServer) broadcastLoop() {
	defer close(ws.done)
	for {
		select {
		case <-ws.ctx.Done():
			return
		case msg := <-ws.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Debug("通知を JSON にできません", "event", msg.Event, "err", err)
				continue
			}
			_ = ws.transport.BroadcastMessage(data)
		}
	}
}

func (ws *WebSocketServer) handleClientConnect(connID string) error {
	slog.Debug("New WebSocket connection established", "connID", connID)
	return nil
}

func (ws *WebSocketServer) handleClientDisconnect(connID string) {
	slog.Debug("WebSocket connection closed", "connID", connID)
}

// handleClientMessage はクライアントからのコマンドを実行し、レスポンスを返す
func (ws *WebSocketServer) handleClientMessage(connID string, message []byte) error {
	cmd, err := protocol.ParseCommand(message)
	if err != nil {
		return ws.sendResponse(connID, protocol.NewResponse("", nil, err))
	}

	fn, ok := ws.commands[cmd.Command]
	if !ok {
		return ws.sendResponse(connID, protocol.NewResponse(cmd.ID, nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)))
	}

	ctx, cancel := context.WithTimeout(ws.ctx, commandTimeout)
	defer cancel()
	data, err := fn(ctx)
	if err != nil {
		slog.Info("コマンドが失敗しました", "command", cmd.Command, "err", err)
	}
	return ws.sendResponse(connID, protocol.NewResponse(cmd.ID, data, err))
}

func (ws *WebSocketServer) sendResponse(connID string, res protocol.ResponseMessage) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return ws.transport.SendMessage(connID, data)
}

func (ws *WebSocketServer) handleSearch(ctx context.Context) (interface{}, error) {
	return nil, ws.node.Search(ctx)
}

func (ws *WebSocketServer) handleListNodes(ctx context.Context) (interface{}, error) {
	nodes, err := ws.node.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return protocol.ConvertNodeSnapshots(nodes), nil
}

func (ws *WebSocketServer) handleShutdown(ctx context.Context) (interface{}, error) {
	if ws.shutdown == nil {
		return nil, errors.New("shutdown is not available")
	}
	// レスポンスを返してから止める
	go ws.shutdown()
	return nil, nil
}

func (ws *WebSocketServer) handleHelp(ctx context.Context) (interface{}, error) {
	names := make([]string, 0, len(ws.commands))
	for name := range ws.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
