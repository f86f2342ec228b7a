package main

import (
	"context"
	"echonet-node/client"
	"echonet-node/config"
	"echonet-node/console"
	"echonet-node/server"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/multierr"
)

func main() {
	args := config.ParseCommandLineArgs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if args.Connect != "" {
		if err := connect(ctx, args.Connect); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect は起動中のノードに接続する。ws:// か wss:// なら WebSocket、それ以外はシェルのアドレスとみなす。
func connect(ctx context.Context, addr string) error {
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		return console.RunPrompt(ctx, addr)
	}

	c, err := client.NewWebSocketClient(addr)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return multierr.Append(client.RunLines(ctx, c, os.Stdin, os.Stdout), c.Close())
}

func run(ctx context.Context, args config.CommandLineArgs) (err error) {
	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}
	cfg.ApplyCommandLineArgs(args)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}

	logManager, err := server.NewLogManager(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		return fmt.Errorf("ログの初期化に失敗: %w", err)
	}
	defer func() { err = multierr.Append(err, logManager.Close()) }()

	s, err := server.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	if cfg.Debug {
		slog.Info("デバッグモードで起動しました")
	}
	return s.Run()
}
