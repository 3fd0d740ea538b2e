package msg

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// ProgressBar is an io.Writer that counts the bytes written through it and
// redraws a single status line. It is meant to sit behind an io.TeeReader.
type ProgressBar struct {
	Total      int64
	Current    int64
	Indent     int
	Start      time.Time
	W          io.Writer
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total int64, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:     total,
		Indent:    indent,
		Start:     time.Now(),
		W:         w,
		lastPrint: time.Now(),
	}
}

// NewDownloadBar returns a bar drawing on the package output when it is a
// terminal. Otherwise the bar counts silently so logs stay readable.
func NewDownloadBar(total int64) *ProgressBar {
	w := Output()
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		w = io.Discard
	}
	return NewProgressBar(total, 4, w)
}

func (pb *ProgressBar) Write(p []byte) (int, error) {
	n := len(p)
	pb.Current += int64(n)

	if time.Since(pb.lastPrint) > 40*time.Millisecond {
		pb.print(false)
		pb.lastPrint = time.Now()
	}
	return n, nil
}

func (pb *ProgressBar) print(finish bool) {
	width := 40
	percent := float64(pb.Current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	if pb.Total > 0 {
		fmt.Fprintf(pb.W, "\r%s%6.f%% [%s] %c",
			strings.Repeat(" ", pb.Indent),
			percent*100,
			bar,
			throb,
		)
	} else {
		fmt.Fprintf(pb.W, "\r%s%d KB %c",
			strings.Repeat(" ", pb.Indent),
			pb.Current/1024,
			throb,
		)
	}
}

// Finish draws the final state and reports how long the transfer took
func (pb *ProgressBar) Finish() time.Duration {
	pb.print(true)
	fmt.Fprintln(pb.W)
	return time.Since(pb.Start)
}
