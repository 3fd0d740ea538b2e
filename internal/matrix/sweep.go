package matrix

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/shell"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusPlanned Status = "planned"
)

// Result is the outcome of one job
type Result struct {
	Job
	Status   Status
	Err      error
	LogPath  string
	Duration time.Duration
}

// Sweeper runs jobs, each with its output captured in its own log file
type Sweeper struct {
	// NewRunner returns the runner for one job writing its output to w
	NewRunner func(w io.Writer) shell.Runner
	LogDir    string
	// Jobs bounds how many combinations build at once
	Jobs int
	// Tee, when set, also receives every job's output
	Tee    io.Writer
	DryRun bool
}

func defaultRunner(w io.Writer) shell.Runner {
	return shell.ExecRunner{Stdout: w, Stderr: w, Quiet: true}
}

// Run executes all jobs. A failing job never stops the others: its status is
// recorded and the sweep goes on. Results are in job order.
func (s *Sweeper) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	newRunner := s.NewRunner
	if newRunner == nil {
		newRunner = defaultRunner
	}
	var tee io.Writer
	if s.Tee != nil {
		tee = &syncWriter{w: s.Tee}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(s.Jobs, 1))

	for i, job := range jobs {
		results[i] = Result{Job: job, LogPath: filepath.Join(s.LogDir, job.Log)}
		if job.Skip != nil {
			results[i].Status = StatusSkipped
			results[i].Err = job.Skip
			continue
		}
		if s.DryRun {
			results[i].Status = StatusPlanned
			msg.Step("Would run", "%s > %s", job.Command, job.Log)
			continue
		}

		eg.Go(func() error {
			s.runOne(ctx, &results[i], newRunner, tee)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

func (s *Sweeper) runOne(ctx context.Context, res *Result, newRunner func(io.Writer) shell.Runner, tee io.Writer) {
	msg.Step("Building", "%s", res.Log)
	msg.Info("%s", res.Command)

	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	f, err := os.Create(res.LogPath)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		msg.Error("%s: %v", res.Log, err)
		return
	}
	defer f.Close()

	var w io.Writer = f
	if tee != nil {
		lines := &lineWriter{prefix: []byte("    "), w: tee}
		defer lines.Flush()
		w = io.MultiWriter(f, lines)
	}

	if err := newRunner(w).Run(ctx, res.Command); err != nil {
		res.Status, res.Err = StatusFailed, err
		msg.Error("%s failed: %v (see %s)", res.Log, err, res.LogPath)
		return
	}
	res.Status = StatusOK
}

// Failed counts the failed results
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("tee: %w", err)
	}
	return n, nil
}

// lineWriter forwards only whole lines to w, so the output of jobs sharing a
// tee never interleaves mid-line. Tee errors are dropped; the log file is
// what counts.
type lineWriter struct {
	prefix []byte
	w      io.Writer
	buf    []byte
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i+1])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush writes a trailing partial line
func (l *lineWriter) Flush() {
	if len(l.buf) > 0 {
		l.emit(append(l.buf, '\n'))
		l.buf = nil
	}
}

func (l *lineWriter) emit(line []byte) {
	out := make([]byte, 0, len(l.prefix)+len(line))
	out = append(out, l.prefix...)
	out = append(out, line...)
	l.w.Write(out)
}
