package gen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qobs-build/icupack/internal/shell"
)

var ErrVcvarsNotFound = errors.New("vcvarsall.bat not found")

// CaptureFunc runs a command and returns its standard output
type CaptureFunc func(ctx context.Context, c shell.Command) (string, error)

// VcvarsArch maps a settings arch to the vcvarsall.bat argument
func VcvarsArch(arch string) string {
	if arch == "x86_64" {
		return "amd64"
	}
	return "x86"
}

// FindVcvarsall locates vcvarsall.bat for the Visual Studio major version.
// ICUPACK_VCVARSALL wins; Visual Studio 2017 and later are found through
// vswhere, older ones through their VS<nn>0COMNTOOLS variable.
func FindVcvarsall(ctx context.Context, version string, getenv func(string) string, capture CaptureFunc) (string, error) {
	if p := getenv("ICUPACK_VCVARSALL"); p != "" {
		return checkFile(p)
	}

	major, err := strconv.Atoi(version)
	if err != nil {
		return "", fmt.Errorf("invalid Visual Studio version %q: %w", version, err)
	}

	if major >= 15 {
		vswhere := filepath.Join(getenv("ProgramFiles(x86)"), "Microsoft Visual Studio", "Installer", "vswhere.exe")
		out, err := capture(ctx, shell.New(vswhere,
			"-version", fmt.Sprintf("[%d.0,%d.0)", major, major+1),
			"-products", "*",
			"-requires", "Microsoft.VisualStudio.Component.VC.Tools.x86.x64",
			"-property", "installationPath",
		))
		if err != nil {
			return "", fmt.Errorf("%w: vswhere: %v", ErrVcvarsNotFound, err)
		}
		for line := range strings.Lines(out) {
			if line = strings.TrimSpace(line); line != "" {
				return checkFile(filepath.Join(line, "VC", "Auxiliary", "Build", "vcvarsall.bat"))
			}
		}
		return "", fmt.Errorf("%w: no Visual Studio %d installation", ErrVcvarsNotFound, major)
	}

	name := fmt.Sprintf("VS%d0COMNTOOLS", major)
	tools := getenv(name)
	if tools == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrVcvarsNotFound, name)
	}
	// VS<nn>0COMNTOOLS points at <install>\Common7\Tools\
	return checkFile(filepath.Join(tools, "..", "..", "VC", "vcvarsall.bat"))
}

func checkFile(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVcvarsNotFound, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrVcvarsNotFound, p)
	}
	return filepath.Clean(p), nil
}

// VcvarsScript returns a batch script that loads the MSVC environment for
// arch and prints the resulting environment
func VcvarsScript(vcvarsall, arch string) (string, error) {
	call, err := shell.New(vcvarsall, arch).BatchLine()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	write(&sb, "@echo off", crlf)
	// a preconfigured VisualStudioVersion makes vcvarsall keep the old toolset
	write(&sb, "set VisualStudioVersion=", crlf)
	write(&sb, "call ", call, " >nul", crlf)
	write(&sb, "if errorlevel 1 exit /b 1", crlf)
	write(&sb, "set", crlf)
	return sb.String(), nil
}

// CaptureVcvars runs vcvarsall.bat through cmd.exe and returns the
// environment it sets up. Nothing is applied to the current process.
func CaptureVcvars(ctx context.Context, capture CaptureFunc, vcvarsall, arch, tmpDir string) (map[string]string, error) {
	script, err := VcvarsScript(vcvarsall, arch)
	if err != nil {
		return nil, err
	}
	bat := filepath.Join(tmpDir, "icupack-vcvars-"+arch+".bat")
	if err := os.WriteFile(bat, []byte(script), 0644); err != nil {
		return nil, err
	}
	defer os.Remove(bat)

	out, err := capture(ctx, shell.New("cmd.exe", "/d", "/c", bat))
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", filepath.Base(vcvarsall), err)
	}
	env := shell.ParseEnv(out)
	if _, ok := env["INCLUDE"]; !ok {
		return nil, fmt.Errorf("%s %s did not set INCLUDE", vcvarsall, arch)
	}
	return env, nil
}
