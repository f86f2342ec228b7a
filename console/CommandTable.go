package console

import (
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/c-bata/go-prompt"
)

// 応答の最終行。出力はこのどちらかの行で終わる
const (
	StatusOK    = "OK"
	StatusError = "ERR"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	errQuit           = errors.New("quit")
)

// Commander はシェルから操作するノードの機能
type Commander interface {
	Search(ctx context.Context) error
	ListNodes(ctx context.Context) ([]handler.NodeSnapshot, error)
	Shutdown()
}

// CommandDefinition はコマンドの定義を保持する構造体
type CommandDefinition struct {
	Name    string // コマンド名
	Summary string // 概要（短い説明）
	Run     func(ctx context.Context, c Commander, w io.Writer) error
}

// CommandTable はシェルで使えるコマンドの一覧
var CommandTable []CommandDefinition

func init() {
	CommandTable = []CommandDefinition{
		{
			Name:    "search",
			Summary: "全ノードにインスタンスリストを問い合わせる",
			Run: func(ctx context.Context, c Commander, w io.Writer) error {
				return c.Search(ctx)
			},
		},
		{
			Name:    "list_nodes",
			Summary: "既知のノードとデバイスの一覧表示",
			Run: func(ctx context.Context, c Commander, w io.Writer) error {
				nodes, err := c.ListNodes(ctx)
				if err != nil {
					return err
				}
				WriteNodes(w, nodes)
				return nil
			},
		},
		{
			Name:    "shutdown",
			Summary: "ノードを停止する",
			Run: func(ctx context.Context, c Commander, w io.Writer) error {
				c.Shutdown()
				return nil
			},
		},
		{
			Name:    "quit",
			Summary: "接続を閉じる",
			Run: func(ctx context.Context, c Commander, w io.Writer) error {
				return errQuit
			},
		},
		{
			Name:    "help",
			Summary: "コマンドの一覧を表示する",
			Run: func(ctx context.Context, c Commander, w io.Writer) error {
				for _, def := range CommandTable {
					fmt.Fprintf(w, "%-10s %s\n", def.Name, def.Summary)
				}
				return nil
			},
		},
	}
}

func findCommand(name string) (CommandDefinition, bool) {
	for _, def := range CommandTable {
		if def.Name == name {
			return def, true
		}
	}
	return CommandDefinition{}, false
}

// Execute は1行のコマンドを実行し、出力と状態行を w に書く。
// quit の場合は true を返す。空行は何もしない。
func Execute(ctx context.Context, c Commander, line string, w io.Writer) (quit bool) {
	name := strings.TrimSpace(line)
	if name == "" {
		return false
	}
	def, ok := findCommand(name)
	if !ok {
		fmt.Fprintf(w, "%s %v: %s\n", StatusError, ErrUnknownCommand, name)
		return false
	}
	err := def.Run(ctx, c, w)
	switch {
	case errors.Is(err, errQuit):
		fmt.Fprintf(w, "%s bye\n", StatusOK)
		return true
	case err != nil:
		fmt.Fprintf(w, "%s %v\n", StatusError, err)
	default:
		fmt.Fprintln(w, StatusOK)
	}
	return false
}

// IsStatusLine は応答の最終行かどうかを返す
func IsStatusLine(line string) bool {
	return line == StatusOK || strings.HasPrefix(line, StatusOK+" ") || strings.HasPrefix(line, StatusError+" ")
}

// WriteNodes はノードの一覧を書き出す
//
//	192.168.0.20
//	  0EF001 0EF0[Node profile] [generic]
//	    80 Operation status: 30
func WriteNodes(w io.Writer, nodes []handler.NodeSnapshot) {
	for _, n := range nodes {
		if n.Self {
			fmt.Fprintf(w, "%s (self)\n", n.ID)
		} else {
			fmt.Fprintln(w, n.ID)
		}
		for _, d := range n.Devices {
			classCode := d.EOJ.ClassCode()
			fmt.Fprintf(w, "  %s %s [%s]\n", d.EOJ.IDString(), classCode, d.Kind)
			for _, p := range d.Properties {
				if name, ok := echonet_lite.PropertyName(classCode, p.EPC); ok {
					fmt.Fprintf(w, "    %s %s: %s\n", p.EPC, name, p.EDTString())
				} else {
					fmt.Fprintf(w, "    %s: %s\n", p.EPC, p.EDTString())
				}
			}
		}
	}
}

// commandSuggests はコマンド名の補完候補を返す
func commandSuggests() []prompt.Suggest {
	suggests := make([]prompt.Suggest, 0, len(CommandTable))
	for _, def := range CommandTable {
		suggests = append(suggests, prompt.Suggest{Text: def.Name, Description: def.Summary})
	}
	return suggests
}
