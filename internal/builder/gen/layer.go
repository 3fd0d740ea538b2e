package gen

import (
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/qobs-build/icupack/internal/shell"
)

// LayerGen builds with MSVC from inside MSYS or Cygwin. Every command carries
// the captured MSVC environment with the layer's bin directories first on PATH.
type LayerGen struct {
	layer   shell.Layer
	root    string
	binDirs []string
	bits    string
	env     map[string]string
}

// NewLayerGen returns the generator for layer rooted at root. msvcEnv is the
// environment captured from vcvarsall.bat.
func NewLayerGen(layer shell.Layer, root string, binDirs []string, bits string, msvcEnv map[string]string) *LayerGen {
	g := &LayerGen{layer: layer, root: root, binDirs: binDirs, bits: bits, env: make(map[string]string, len(msvcEnv)+1)}

	var path string
	for k, v := range msvcEnv {
		// Windows has Path, PATH and friends; keep exactly one
		if strings.EqualFold(k, "PATH") {
			path = v
			continue
		}
		g.env[k] = v
	}

	entries := make([]string, 0, len(binDirs)+1)
	for _, dir := range binDirs {
		entries = append(entries, filepath.Join(root, filepath.FromSlash(dir)))
	}
	if path == "" {
		path = os.Getenv("PATH")
	}
	g.env["PATH"] = shell.JoinPathList(append(entries, path)...)
	return g
}

func (g *LayerGen) Platform() string {
	if g.layer == shell.Cygwin {
		return "Cygwin/MSVC"
	}
	return "MSYS/MSVC"
}

func (g *LayerGen) HostArgs() []string {
	if g.layer == shell.MSYS {
		return []string{"--host=i686-pc-mingw" + g.bits}
	}
	return nil
}

func (g *LayerGen) TranslatePath(p string) string {
	return shell.TranslatePath(g.layer, p)
}

// Env returns the environment every command of this generator runs with
func (g *LayerGen) Env() map[string]string { return g.env }

// tool returns the absolute path of name inside the layer. Commands are
// resolved before their environment applies, so the layer's PATH cannot be
// relied on to find them.
func (g *LayerGen) tool(name string) string {
	for _, dir := range g.binDirs {
		base := filepath.Join(g.root, filepath.FromSlash(dir), name)
		for _, candidate := range []string{base + ".exe", base} {
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate
			}
		}
	}
	if len(g.binDirs) == 0 {
		return name
	}
	return filepath.Join(g.root, filepath.FromSlash(g.binDirs[0]), name)
}

func (g *LayerGen) withEnv(c shell.Command) shell.Command {
	env := maps.Clone(g.env)
	maps.Copy(env, c.Env)
	c.Env = env
	return c
}

func (g *LayerGen) Configure(dir, script string, args []string) (shell.Command, error) {
	inner := shell.New(script, args...).InDir(dir)
	c, err := shell.WrapBash(g.tool("bash"), inner)
	if err != nil {
		return shell.Command{}, err
	}
	return g.withEnv(c), nil
}

// Make runs through bash -c under MSYS and directly under Cygwin
func (g *LayerGen) Make(dir string, args ...string) (shell.Command, error) {
	inner := shell.New("make", args...).InDir(dir)
	if g.layer == shell.Cygwin {
		inner.Path = g.tool("make")
		return g.withEnv(inner), nil
	}
	c, err := shell.WrapBash(g.tool("bash"), inner)
	if err != nil {
		return shell.Command{}, err
	}
	return g.withEnv(c), nil
}
