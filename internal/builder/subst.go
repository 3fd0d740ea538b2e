package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qobs-build/icupack/internal/recipe"
)

// Substitution replaces Old with New inside one case section of a shell
// script. The text must occur exactly once in every line it applies to.
type Substitution struct {
	// Section is the case label, e.g. "MSYS/MSVC)"
	Section string
	// Line limits the substitution to the lines of the section starting with
	// Line. Empty means the whole section, where Old must occur exactly once.
	Line string
	Old  string
	New  string
}

// platformName is the runConfigureICU platform for p
func platformName(p recipe.Params) string {
	switch {
	case p.IsWindows() && p.MSVCPlatform == "cygwin":
		return "Cygwin/MSVC"
	case p.IsWindows():
		return "MSYS/MSVC"
	case p.OS == recipe.OSMacos:
		return "MacOSX"
	case p.IsGCC():
		return "Linux/gcc"
	default:
		return "Linux"
	}
}

// Substitutions returns the runConfigureICU edits p needs. On Windows the
// MSVC runtime flag follows compiler.runtime; with gcc on Linux the
// hard-coded compiler exports go so CC and CXX from the environment win.
func Substitutions(p recipe.Params) []Substitution {
	section := platformName(p) + ")"
	switch {
	case p.IsWindows() && p.IsDebug():
		return []Substitution{{Section: section, Line: "DEBUG_C", Old: "-MDd", New: "-" + p.Runtime + " -FS"}}
	case p.IsWindows():
		return []Substitution{{Section: section, Line: "RELEASE_C", Old: "-MD", New: "-" + p.Runtime}}
	case p.OS == recipe.OSLinux && p.IsGCC():
		return []Substitution{
			{Section: section, Old: "        CC=gcc; export CC\n"},
			{Section: section, Old: "        CXX=g++; export CXX\n"},
		}
	default:
		return nil
	}
}

// ApplySubstitutions rewrites the script at path in place
func ApplySubstitutions(path string, subs []Substitution) error {
	if len(subs) == 0 {
		return nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPatchMismatch, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	text := string(data)
	for _, s := range subs {
		if text, err = s.apply(text); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return writeFile(path, strings.NewReader(text), fi.Mode().Perm())
}

func (s Substitution) apply(text string) (string, error) {
	lines := strings.SplitAfter(text, "\n")

	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == s.Section {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("%w: section %q not found", ErrPatchMismatch, s.Section)
	}
	end := start
	for end < len(lines) && strings.TrimSpace(lines[end]) != ";;" {
		end++
	}
	if end == len(lines) {
		return "", fmt.Errorf("%w: section %q is not terminated", ErrPatchMismatch, s.Section)
	}

	if s.Line == "" {
		body := strings.Join(lines[start:end], "")
		if n := strings.Count(body, s.Old); n != 1 {
			return "", fmt.Errorf("%w: %q occurs %d times in section %q", ErrPatchMismatch, s.Old, n, s.Section)
		}
		body = strings.Replace(body, s.Old, s.New, 1)
		return strings.Join(lines[:start], "") + body + strings.Join(lines[end:], ""), nil
	}

	matched := 0
	for i := start; i < end; i++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[i]), s.Line) {
			continue
		}
		if n := strings.Count(lines[i], s.Old); n != 1 {
			return "", fmt.Errorf("%w: %q occurs %d times in %q", ErrPatchMismatch, s.Old, n, strings.TrimSpace(lines[i]))
		}
		lines[i] = strings.Replace(lines[i], s.Old, s.New, 1)
		matched++
	}
	if matched == 0 {
		return "", fmt.Errorf("%w: no %s lines in section %q", ErrPatchMismatch, s.Line, s.Section)
	}
	return strings.Join(lines, ""), nil
}
