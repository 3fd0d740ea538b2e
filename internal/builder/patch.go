package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const devNull = "/dev/null"

// filePatch is the part of a unified diff touching one file
type filePatch struct {
	oldName string
	newName string
	hunks   []hunk
}

type hunk struct {
	oldStart int
	old      []string
	new      []string
}

// Patch applies the configured ticket patches to the extracted sources and
// then rewrites runConfigureICU for the target platform
func (b *Builder) Patch(ctx context.Context) error {
	for _, ps := range b.cfg.Patches {
		ok, err := b.patchApplies(ps)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		var diff bytes.Buffer
		if err := b.download(ctx, ps.URL, &diff); err != nil {
			return fmt.Errorf("patch: %w", err)
		}
		msg.Step("Patching", "%s", archiveName(ps.URL))
		if err := ApplyPatch(b.rootDir(), diff.String(), ps.Strip); err != nil {
			return fmt.Errorf("%s: %w", archiveName(ps.URL), err)
		}
	}

	script := filepath.Join(b.sourceDir(), "runConfigureICU")
	return ApplySubstitutions(script, Substitutions(b.params))
}

func (b *Builder) patchApplies(ps recipe.PatchSection) (bool, error) {
	if ps.When == "" {
		return true, nil
	}
	env := b.params.Env(b.cfg.Package.Name, b.cfg.Package.Version)
	program, err := expr.Compile(ps.When, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("patch %s: invalid condition: %w", ps.URL, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("patch %s: %w", ps.URL, err)
	}
	return out.(bool), nil
}

// stripPath removes the first n components of a diff file name
func stripPath(name string, n int) string {
	if name == devNull {
		return name
	}
	// diff headers may carry a tab separated timestamp
	name, _, _ = strings.Cut(name, "\t")
	name = strings.TrimSpace(name)
	for range n {
		_, rest, ok := strings.Cut(name, "/")
		if !ok {
			break
		}
		name = rest
	}
	return name
}

// parseHunkHeader parses "@@ -l,s +l,s @@"
func parseHunkHeader(line string) (oldStart, oldLen, newLen int, err error) {
	fields := strings.Fields(line)
	if len(fields) < 4 || fields[0] != "@@" || !strings.HasPrefix(fields[1], "-") || !strings.HasPrefix(fields[2], "+") {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q", line)
	}
	parseRange := func(s string) (int, int, error) {
		start, length, ok := strings.Cut(s[1:], ",")
		st, err := strconv.Atoi(start)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			return st, 1, nil
		}
		l, err := strconv.Atoi(length)
		return st, l, err
	}
	if oldStart, oldLen, err = parseRange(fields[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	if _, newLen, err = parseRange(fields[2]); err != nil {
		return 0, 0, 0, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	return oldStart, oldLen, newLen, nil
}

// parsePatch splits a unified diff into per-file patches
func parsePatch(diff string, strip int) ([]filePatch, error) {
	lines := strings.Split(strings.ReplaceAll(diff, "\r\n", "\n"), "\n")
	var patches []filePatch

	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], "--- ") || i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
			continue
		}
		fp := filePatch{
			oldName: stripPath(lines[i][4:], strip),
			newName: stripPath(lines[i+1][4:], strip),
		}
		i += 2

		for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
			oldStart, oldLen, newLen, err := parseHunkHeader(lines[i])
			if err != nil {
				return nil, err
			}
			h := hunk{oldStart: oldStart}
			i++
			for i < len(lines) && (len(h.old) < oldLen || len(h.new) < newLen) {
				line := lines[i]
				i++
				if line == "" {
					// some mailers strip the space of empty context lines
					line = " "
				}
				switch line[0] {
				case ' ':
					h.old = append(h.old, line[1:])
					h.new = append(h.new, line[1:])
				case '-':
					h.old = append(h.old, line[1:])
				case '+':
					h.new = append(h.new, line[1:])
				case '\\':
					// \ No newline at end of file
				default:
					return nil, fmt.Errorf("%s: unexpected line in hunk: %q", fp.newName, line)
				}
			}
			if len(h.old) != oldLen || len(h.new) != newLen {
				return nil, fmt.Errorf("%s: truncated hunk at line %d", fp.newName, oldStart)
			}
			for i < len(lines) && strings.HasPrefix(lines[i], `\`) {
				i++
			}
			fp.hunks = append(fp.hunks, h)
		}
		i--
		patches = append(patches, fp)
	}

	if len(patches) == 0 {
		return nil, errors.New("no file changes found in patch")
	}
	return patches, nil
}

// ApplyPatch applies a unified diff to the tree at root, after stripping
// strip leading components from the file names
func ApplyPatch(root, diff string, strip int) error {
	patches, err := parsePatch(diff, strip)
	if err != nil {
		return err
	}
	for _, fp := range patches {
		if err := applyFilePatch(root, fp); err != nil {
			return err
		}
	}
	return nil
}

func applyFilePatch(root string, fp filePatch) error {
	if fp.newName == devNull {
		target, err := safeJoin(root, fp.oldName)
		if err != nil {
			return err
		}
		return os.Remove(target)
	}

	target, err := safeJoin(root, fp.newName)
	if err != nil {
		return err
	}

	var content string
	perm := os.FileMode(0644)
	if fp.oldName != devNull {
		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPatchMismatch, err)
		}
		if fi, err := os.Stat(target); err == nil {
			perm = fi.Mode().Perm()
		}
		content = string(data)
	}

	crlf := strings.Contains(content, "\r\n")
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	offset := 0
	for n, h := range fp.hunks {
		at := findHunk(lines, h.old, h.oldStart-1+offset)
		if at < 0 {
			patched, ok := fuzzyApply(strings.Join(lines, "\n"), h)
			if !ok {
				return fmt.Errorf("%w: %s: hunk #%d at line %d", ErrPatchMismatch, fp.newName, n+1, h.oldStart)
			}
			msg.Warn("%s: hunk #%d applied with fuzz", fp.newName, n+1)
			lines = strings.Split(patched, "\n")
			continue
		}
		lines = append(lines[:at], append(append([]string(nil), h.new...), lines[at+len(h.old):]...)...)
		offset += len(h.new) - len(h.old)
	}

	out := strings.Join(lines, "\n")
	if crlf {
		out = strings.ReplaceAll(out, "\n", "\r\n")
	}
	return writeFile(target, strings.NewReader(out), perm)
}

// findHunk returns the index of old in lines closest to want, or -1
func findHunk(lines, old []string, want int) int {
	if len(old) == 0 {
		return min(max(want, 0), len(lines))
	}
	best := -1
	for i := 0; i+len(old) <= len(lines); i++ {
		if !equalLines(lines[i:i+len(old)], old) {
			continue
		}
		if best < 0 || abs(i-want) < abs(best-want) {
			best = i
		}
	}
	return best
}

func equalLines(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// fuzzyApply applies a hunk whose context drifted from the file
func fuzzyApply(text string, h hunk) (string, bool) {
	dmp := diffmatchpatch.New()
	dmp.MatchDistance = 100000
	patches := dmp.PatchMake(strings.Join(h.old, "\n"), strings.Join(h.new, "\n"))
	out, applied := dmp.PatchApply(patches, text)
	for _, ok := range applied {
		if !ok {
			return text, false
		}
	}
	return out, len(applied) > 0
}
