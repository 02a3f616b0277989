package cli

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/termchat/termchat-server/internal/chat"
)

// Tokenize splits one command line into tokens. Tokens are separated by
// whitespace; a double-quoted token may contain spaces and embeds a literal
// quote as \".
func Tokenize(line string) ([]string, error) {
	var tokens []string
	var current strings.Builder

	inQuotes := false
	escaped := false
	started := false

	flush := func() {
		if started {
			tokens = append(tokens, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && inQuotes:
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
			started = true
		case unicode.IsSpace(r) && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuotes || escaped {
		return nil, fmt.Errorf("%w: unterminated quote", chat.ErrInvalidArgument)
	}
	flush()
	return tokens, nil
}
