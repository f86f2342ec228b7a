package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger はログファイルに slog の出力を書き込む。Rotate でファイルを開き直せる。
type Logger struct {
	logMutex sync.Mutex
	path     string
	logFile  *os.File
	level    *slog.LevelVar
	console  io.Writer // nil でなければ Warn 以上をここにも出す
}

var (
	logger   *Logger
	loggerMu sync.Mutex
)

func GetLogger() *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return logger
}

// SetLogger は l を既定のロガーにし、slog の出力先にする。以前のロガーは閉じる。
// nil を渡すと slog は標準エラーに戻る。
func SetLogger(l *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		_ = logger.Close()
	}
	logger = l
	if l == nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return
	}
	slog.SetDefault(slog.New(l.Handler()))
}

// NewLogger は filename に追記するロガーを作成する
func NewLogger(filename string, debug bool) (*Logger, error) {
	logFile, err := openLogFile(filename)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	l := &Logger{
		path:    filename,
		logFile: logFile,
		level:   level,
	}
	l.SetDebug(debug)
	return l, nil
}

func openLogFile(filename string) (*os.File, error) {
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}
	return logFile, nil
}

// SetConsole は Warn 以上のログを w にも書き込む
func (l *Logger) SetConsole(w io.Writer) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()
	l.console = w
}

// SetDebug はデバッグレベルのログを出すかどうかを切り替える
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

func (l *Logger) Handler() slog.Handler {
	file := slog.NewTextHandler(l, &slog.HandlerOptions{Level: l.level})
	return &teeHandler{file: file, logger: l}
}

// Write はログファイルに書き込む。閉じられている場合は捨てる。
func (l *Logger) Write(p []byte) (int, error) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()
	if l.logFile == nil {
		return len(p), nil
	}
	return l.logFile.Write(p)
}

func (l *Logger) writeConsole(p []byte) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()
	if l.console != nil {
		_, _ = l.console.Write(p)
	}
}

func (l *Logger) Close() error {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// Rotate はログファイルを閉じて開き直す
func (l *Logger) Rotate() error {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return nil // No log file to rotate
	}
	_ = l.logFile.Close()

	logFile, err := openLogFile(l.path)
	if err != nil {
		l.logFile = nil
		return fmt.Errorf("ログファイルを再オープンできませんでした: %w", err)
	}
	l.logFile = logFile
	return nil
}
