package handler

import (
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/network"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Session は UDP ソケットと Monitor をつなぐ。受信したデータグラムはイベントループで Monitor に渡す。
type Session struct {
	conn  *network.UDPConnection
	core  *HandlerCore
	ctx   context.Context
	Debug bool
}

// CreateSession は ip のインターフェースで ECHONET Lite のポートを開く
func CreateSession(ctx context.Context, ip net.IP, core *HandlerCore, monitorCfg *network.NetworkMonitorConfig, debug bool) (*Session, error) {
	conn, err := network.CreateUDPConnection(ctx, ip, echonet_lite.ECHONETLitePort, network.ECHONETLiteMulticastIPv4, monitorCfg)
	if err != nil {
		return nil, err
	}
	return NewSession(ctx, conn, core, debug), nil
}

func NewSession(ctx context.Context, conn *network.UDPConnection, core *HandlerCore, debug bool) *Session {
	return &Session{
		conn:  conn,
		core:  core,
		ctx:   ctx,
		Debug: debug,
	}
}

// Send はデータを nodeID (IPアドレス) に送信する。nodeID が空ならマルチキャストグループに送る。
func (s *Session) Send(nodeID string, data []byte) error {
	var ip net.IP
	if nodeID != MulticastNodeID {
		ip = net.ParseIP(nodeID)
		if ip == nil {
			return fmt.Errorf("invalid node id: %q", nodeID)
		}
	}
	if _, err := s.conn.SendTo(ip, data); err != nil {
		return err
	}
	return nil
}

// MainLoop は受信を続け、受け取ったデータを receive に渡す処理をイベントループに積む。
// コンテキストがキャンセルされるかソケットが閉じられると戻る。
func (s *Session) MainLoop(receive func(data []byte, from string)) {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		data, addr, err := s.conn.Receive(s.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if network.IsClosed(err) {
				slog.Info("受信終了: 接続が閉じられました")
				return
			}
			slog.Error("データ受信中にエラーが発生", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if len(data) == 0 {
			continue
		}

		if s.Debug {
			slog.Debug("受信データ(hex)", "addr", addr, "hex", hex.EncodeToString(data))
		}

		from := addr.IP.String()
		if !s.core.Post(func() { receive(data, from) }) {
			return
		}
	}
}

func (s *Session) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
