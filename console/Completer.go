package console

import (
	"strings"

	"github.com/c-bata/go-prompt"
)

// Completer はコマンド名を補完する。コマンドは引数を取らないので2語目以降は候補なし。
func Completer(d prompt.Document) []prompt.Suggest {
	words := splitWords(d.TextBeforeCursor())
	if len(words) > 1 {
		return []prompt.Suggest{}
	}
	return prompt.FilterHasPrefix(commandSuggests(), d.GetWordBeforeCursor(), true)
}

// splitWords は入力行を単語に分割する。
// 末尾が空白なら、次の単語の入力中として空の単語を1つ加える。
func splitWords(line string) []string {
	words := strings.Fields(line)
	if words == nil {
		words = []string{}
	}
	if line != "" && strings.TrimRight(line, " \t") != line {
		words = append(words, "")
	}
	return words
}
