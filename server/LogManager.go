package server

import (
	"echonet-node/echonet_lite/log"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// LogManager はログファイルを slog の出力先にし、SIGHUP でローテーションする
type LogManager struct {
	logger   *log.Logger
	rotateCh chan os.Signal
	done     chan struct{}
}

func NewLogManager(logFilename string, debug bool) (*LogManager, error) {
	// ロガーのセットアップ
	logger, err := log.NewLogger(logFilename, debug)
	if err != nil {
		return nil, err
	}
	logger.SetConsole(os.Stderr)
	log.SetLogger(logger)

	lm := &LogManager{
		logger:   logger,
		rotateCh: make(chan os.Signal, 1),
		done:     make(chan struct{}),
	}

	// ログローテーション用のシグナルハンドリング (SIGHUP)
	signal.Notify(lm.rotateCh, syscall.SIGHUP)
	go lm.loop()

	return lm, nil
}

func (lm *LogManager) loop() {
	for {
		select {
		case <-lm.done:
			return
		case <-lm.rotateCh:
			fmt.Fprintln(os.Stderr, "SIGHUPを受信しました。ログファイルをローテーションします...")
			slog.Info("SIGHUPを受信しました。ログファイルをローテーションします...")
			if err := lm.logger.Rotate(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "ログローテーションエラー: %v\n", err)
			}
		}
	}
}

// SetDebug はデバッグログの出力を切り替える
func (lm *LogManager) SetDebug(debug bool) {
	lm.logger.SetDebug(debug)
}

func (lm *LogManager) Close() error {
	signal.Stop(lm.rotateCh)
	close(lm.done)
	// ログファイルを閉じる
	log.SetLogger(nil)
	return nil
}
