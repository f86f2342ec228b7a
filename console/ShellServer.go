package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// 1コマンドの処理期限
const commandTimeout = 5 * time.Second

// ShellServer は TCP で1行1コマンドを受け付ける遠隔操作用のシェル
type ShellServer struct {
	addr      string
	commander Commander

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewShellServer(addr string, commander Commander) *ShellServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &ShellServer{
		addr:      addr,
		commander: commander,
		conns:     make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start は待ち受けを開始し、接続の受け付けをバックグラウンドで行う
func (s *ShellServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("シェルの待ち受けに失敗: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("シェルの待ち受けを開始しました", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr は待ち受け中のアドレスを返す
func (s *ShellServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *ShellServer) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Error("シェルの接続受け付けに失敗", "err", err)
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *ShellServer) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	slog.Debug("シェルに接続されました", "remote", conn.RemoteAddr().String())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		w := bufio.NewWriter(conn)
		ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
		quit := Execute(ctx, s.commander, scanner.Text(), w)
		cancel()
		if err := w.Flush(); err != nil {
			return
		}
		if quit {
			return
		}
	}
}

// Close は待ち受けを止め、接続中のセッションを全て閉じる
func (s *ShellServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
