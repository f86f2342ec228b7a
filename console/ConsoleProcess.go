package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"
)

// Client は ShellServer に接続してコマンドを送る
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("シェルに接続できません: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Do は1行送り、状態行までの応答を返す。最後の要素が状態行。
func (c *Client) Do(line string) ([]string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return nil, err
	}
	var lines []string
	for {
		s, err := c.reader.ReadString('\n')
		if err != nil {
			return lines, err
		}
		s = strings.TrimRight(s, "\r\n")
		lines = append(lines, s)
		if IsStatusLine(s) {
			return lines, nil
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// RunLines は in から1行ずつ読んで送り、応答を out に書く。quit か入力の終わりで戻る。
func RunLines(c *Client, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines, err := c.Do(line)
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if line == "quit" {
			return nil
		}
	}
	return scanner.Err()
}

// RunPrompt は addr のシェルに接続し、端末なら go-prompt で、そうでなければ行単位で対話する
func RunPrompt(ctx context.Context, addr string) error {
	c, err := Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return RunLines(c, os.Stdin, os.Stdout)
	}

	fmt.Println("help for usage, quit to exit")
	done := false
	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		lines, err := c.Do(line)
		for _, l := range lines {
			fmt.Println(l)
		}
		if err != nil {
			fmt.Printf("エラー: %v\n", err)
			done = true
			return
		}
		if line == "quit" {
			done = true
		}
	}
	p := prompt.New(executor, Completer,
		prompt.OptionPrefix("> "),
		prompt.OptionTitle("echonet-node"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && done
		}),
	)
	p.Run()
	return nil
}
