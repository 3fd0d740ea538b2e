package shell

import (
	"fmt"
	"strings"
)

// Layer is the POSIX layer a command runs under on Windows
type Layer string

const (
	Native Layer = ""
	MSYS   Layer = "msys"
	Cygwin Layer = "cygwin"
)

func ParseLayer(s string) (Layer, error) {
	switch Layer(s) {
	case MSYS, Cygwin:
		return Layer(s), nil
	default:
		return Native, fmt.Errorf("unknown POSIX layer %q", s)
	}
}

// TranslatePath converts a native Windows path to the form the layer
// expects: D:\out becomes /d/out under MSYS and /cygdrive/d/out under
// Cygwin. Paths without a drive letter only get their separators converted,
// so translating an already translated path is a no-op.
func TranslatePath(layer Layer, p string) string {
	if layer == Native {
		return p
	}

	p = strings.ReplaceAll(p, `\`, "/")
	if len(p) < 2 || p[1] != ':' || !isDriveLetter(p[0]) {
		return p
	}

	drive := strings.ToLower(p[:1])
	rest := strings.TrimRight(p[2:], "/")
	if rest != "" && rest[0] != '/' {
		// drive-relative paths such as D:out have no layer equivalent; anchor them at the root
		rest = "/" + rest
	}

	if layer == Cygwin {
		return "/cygdrive/" + drive + rest
	}
	return "/" + drive + rest
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
