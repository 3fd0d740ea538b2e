package shell

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashLine renders the command as one bash command line. Every word is quoted
// as needed, so arguments with spaces or shell metacharacters survive.
func (c Command) BashLine() (string, error) {
	argv, err := c.Argv()
	if err != nil {
		return "", err
	}
	words := make([]string, len(argv))
	for i, arg := range argv {
		if isPlainWord(arg) {
			words[i] = arg
			continue
		}
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("cannot quote %q for bash: %w", arg, err)
		}
		words[i] = q
	}
	return strings.Join(words, " "), nil
}

// isPlainWord reports whether s needs no quoting in either bash or cmd.exe
func isPlainWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./=:,+@%", r):
		default:
			return false
		}
	}
	return true
}

// BatchLine renders the command as a cmd.exe line
func (c Command) BatchLine() (string, error) {
	argv, err := c.Argv()
	if err != nil {
		return "", err
	}
	words := make([]string, len(argv))
	for i, arg := range argv {
		if isWindowsPath(arg) && !strings.ContainsAny(arg, "=,") {
			words[i] = arg
			continue
		}
		if strings.ContainsAny(arg, "\r\n") {
			return "", fmt.Errorf("cannot render %q for cmd.exe: contains a newline", arg)
		}
		// inside double quotes only " and % are special to cmd.exe
		arg = strings.ReplaceAll(arg, `"`, `""`)
		arg = strings.ReplaceAll(arg, "%", "%%")
		words[i] = `"` + arg + `"`
	}
	return strings.Join(words, " "), nil
}

// isWindowsPath reports whether s is a plain word once backslashes are ignored
func isWindowsPath(s string) bool {
	return isPlainWord(strings.ReplaceAll(s, `\`, "/"))
}

// WrapBash returns a command running c through bash -c. The working directory
// and environment move to the outer command, as bash inherits both.
func WrapBash(bash string, c Command) (Command, error) {
	line, err := c.BashLine()
	if err != nil {
		return Command{}, err
	}
	return Command{Path: bash, Args: []string{"-c", line}, Dir: c.Dir, Env: c.Env}, nil
}
