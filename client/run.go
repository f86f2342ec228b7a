package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const commandTimeout = 10 * time.Second

// RunLines は in から1行ずつコマンドを読んでサーバーに送り、結果と通知を out に書く。
// in が終わるか "quit" を読むと戻る。
func RunLines(ctx context.Context, c *WebSocketClient, in io.Reader, out io.Writer) error {
	var mu sync.Mutex
	printf := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	go func() {
		for n := range c.Notifications() {
			printf("[%s] %s\n", n.Event, n.Data)
		}
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			return nil
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		res, err := c.Command(cmdCtx, line)
		cancel()
		switch {
		case err != nil:
			return err
		case !res.Success:
			printf("ERR %s\n", res.Error)
		case len(res.Data) > 0:
			printf("%s\nOK\n", res.Data)
		default:
			printf("OK\n")
		}
	}
	return scanner.Err()
}
