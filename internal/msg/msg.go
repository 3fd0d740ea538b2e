package msg

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	mu  sync.Mutex
	out io.Writer = os.Stdout
)

// SetOutput redirects every printer in this package to w
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Output returns the writer the printers currently use
func Output() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// DisableColor turns off ANSI colors for all printers
func DisableColor() {
	color.NoColor = true
}

func emit(prefix, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, prefix)
	fmt.Fprint(out, ": ")
	fmt.Fprintf(out, format, a...)
	fmt.Fprint(out, "\n")
}

func Error(format string, a ...any) {
	emit(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(color.RedString("fatal"), format, a...)
	os.Exit(1)
}

func Info(format string, a ...any) {
	emit(color.HiGreenString("info"), format, a...)
}

// Step prints a right-aligned colored verb followed by the message, e.g. "  Fetching icu4c-60_1-src.tgz"
func Step(verb, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s\n", color.HiGreenString("%12s", verb), fmt.Sprintf(format, a...))
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	for _, c := range p {
		if !w.didIndent {
			w.W.Write([]byte(w.Indent))
			w.didIndent = true
		}
		w.W.Write([]byte{c}) // FIXME-perf: buffer this
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	return len(p), nil
}
