package recipe

import (
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
)

// Params is the resolved configuration of one recipe invocation. It is built
// once by ParseParams and passed by value to every stage.
type Params struct {
	OS              string
	Arch            string
	Compiler        string
	CompilerVersion string
	Runtime         string
	BuildType       string

	Shared        bool
	MSVCPlatform  string
	DataPackaging string
	WithUnitTests bool
	Silent        bool

	Jobs int
}

const (
	OSWindows = "Windows"
	OSLinux   = "Linux"
	OSMacos   = "Macos"

	CompilerVisualStudio = "Visual Studio"
	CompilerGCC          = "gcc"
	CompilerClang        = "clang"
	CompilerAppleClang   = "apple-clang"
)

var (
	validOS            = []string{OSWindows, OSLinux, OSMacos}
	validArchs         = []string{"x86", "x86_64"}
	validBuildTypes    = []string{"Release", "Debug"}
	validPlatforms     = []string{"msys", "cygwin"}
	validDataPackaging = []string{"shared", "static", "files", "archive"}
	validRuntimes      = []string{"MD", "MT", "MDd", "MTd"}
)

// HostOS maps runtime.GOOS to a settings os value
func HostOS() string {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacos
	default:
		return OSLinux
	}
}

// HostArch maps runtime.GOARCH to a settings arch value
func HostArch() string {
	if runtime.GOARCH == "386" {
		return "x86"
	}
	return "x86_64"
}

func defaultCompiler(os string) string {
	switch os {
	case OSWindows:
		return CompilerVisualStudio
	case OSMacos:
		return CompilerAppleClang
	default:
		return CompilerGCC
	}
}

// ParseParams builds Params from key=value settings and options. Unset values
// fall back to the option defaults of cfg and to the host platform.
func ParseParams(settings, options []string, defaults OptionsSection) (Params, error) {
	p := Params{
		OS:            HostOS(),
		Arch:          HostArch(),
		BuildType:     "Release",
		Shared:        defaults.Shared,
		MSVCPlatform:  defaults.MSVCPlatform,
		DataPackaging: defaults.DataPackaging,
		WithUnitTests: defaults.WithUnitTests,
		Silent:        defaults.Silent,
		Jobs:          runtime.NumCPU(),
	}
	if p.MSVCPlatform == "" {
		p.MSVCPlatform = "msys"
	}
	if p.DataPackaging == "" {
		p.DataPackaging = "archive"
	}

	for _, kv := range settings {
		key, val, err := splitKeyValue(kv)
		if err != nil {
			return Params{}, err
		}
		switch key {
		case "os":
			p.OS = val
		case "arch":
			p.Arch = val
		case "compiler":
			p.Compiler = val
		case "compiler.version":
			p.CompilerVersion = val
		case "compiler.runtime":
			p.Runtime = val
		case "build_type":
			p.BuildType = val
		default:
			return Params{}, fmt.Errorf("unknown setting %q", key)
		}
	}

	for _, kv := range options {
		key, val, err := splitKeyValue(kv)
		if err != nil {
			return Params{}, err
		}
		// options may be scoped to the package, e.g. icu:shared=True
		if _, after, ok := strings.Cut(key, ":"); ok {
			key = after
		}
		switch key {
		case "shared":
			p.Shared, err = strconv.ParseBool(val)
		case "msvc_platform":
			p.MSVCPlatform = val
		case "data_packaging":
			p.DataPackaging = val
		case "with_unit_tests":
			p.WithUnitTests, err = strconv.ParseBool(val)
		case "silent":
			p.Silent, err = strconv.ParseBool(val)
		default:
			return Params{}, fmt.Errorf("unknown option %q", key)
		}
		if err != nil {
			return Params{}, fmt.Errorf("option %s: %w", key, err)
		}
	}

	if p.Compiler == "" {
		p.Compiler = defaultCompiler(p.OS)
	}
	if p.Compiler == CompilerVisualStudio {
		if p.CompilerVersion == "" {
			p.CompilerVersion = "15"
		}
		if p.Runtime == "" {
			p.Runtime = "MD"
			if p.BuildType == "Debug" {
				p.Runtime = "MDd"
			}
		}
	}

	return p, p.Validate()
}

func splitKeyValue(kv string) (string, string, error) {
	key, val, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", kv)
	}
	return key, strings.TrimSpace(val), nil
}

func checkOneOf(what, val string, allowed []string) error {
	if !slices.Contains(allowed, val) {
		return fmt.Errorf("invalid %s %q, must be one of: %s", what, val, strings.Join(allowed, ", "))
	}
	return nil
}

// Validate checks every closed-set value
func (p Params) Validate() error {
	if err := checkOneOf("os", p.OS, validOS); err != nil {
		return err
	}
	if err := checkOneOf("arch", p.Arch, validArchs); err != nil {
		return err
	}
	if err := checkOneOf("build_type", p.BuildType, validBuildTypes); err != nil {
		return err
	}
	if err := checkOneOf("msvc_platform", p.MSVCPlatform, validPlatforms); err != nil {
		return err
	}
	if err := checkOneOf("data_packaging", p.DataPackaging, validDataPackaging); err != nil {
		return err
	}
	if p.Compiler == CompilerVisualStudio {
		if p.OS != OSWindows {
			return fmt.Errorf("compiler %q requires os=Windows", p.Compiler)
		}
		if err := checkOneOf("compiler.runtime", p.Runtime, validRuntimes); err != nil {
			return err
		}
	} else if p.OS == OSWindows {
		return fmt.Errorf("os=Windows is only supported with compiler=%q", CompilerVisualStudio)
	}
	if p.Jobs < 1 {
		return fmt.Errorf("jobs must be positive, got %d", p.Jobs)
	}
	return nil
}

func (p Params) IsWindows() bool { return p.OS == OSWindows }
func (p Params) IsDebug() bool   { return p.BuildType == "Debug" }
func (p Params) IsGCC() bool     { return strings.HasPrefix(p.Compiler, CompilerGCC) }

// Bits returns the library address width passed to configure
func (p Params) Bits() string {
	if p.Arch == "x86_64" {
		return "64"
	}
	return "32"
}

// BinDir and LibDir return the package layout directory names
func (p Params) BinDir() string {
	if p.IsWindows() && p.Arch == "x86_64" {
		return "bin64"
	}
	return "bin"
}

func (p Params) LibDir() string {
	if p.IsWindows() && p.Arch == "x86_64" {
		return "lib64"
	}
	return "lib"
}

// Settings returns the settings as they would be passed on the command line
func (p Params) Settings() map[string]string {
	s := map[string]string{
		"os":               p.OS,
		"arch":             p.Arch,
		"compiler":         p.Compiler,
		"compiler.version": p.CompilerVersion,
		"build_type":       p.BuildType,
	}
	if p.Runtime != "" {
		s["compiler.runtime"] = p.Runtime
	}
	return s
}

// Options returns the option values, booleans rendered the way conan does
func (p Params) Options() map[string]string {
	return map[string]string{
		"shared":          conanBool(p.Shared),
		"msvc_platform":   p.MSVCPlatform,
		"data_packaging":  p.DataPackaging,
		"with_unit_tests": conanBool(p.WithUnitTests),
		"silent":          conanBool(p.Silent),
	}
}

func conanBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Env returns the expr environment for patch conditions
func (p Params) Env(name, version string) map[string]any {
	return map[string]any{
		"name":             name,
		"version":          version,
		"os":               p.OS,
		"arch":             p.Arch,
		"compiler":         p.Compiler,
		"compiler_version": p.CompilerVersion,
		"runtime":          p.Runtime,
		"build_type":       p.BuildType,
		"shared":           p.Shared,
		"msvc_platform":    p.MSVCPlatform,
		"data_packaging":   p.DataPackaging,
		"with_unit_tests":  p.WithUnitTests,
		"silent":           p.Silent,
	}
}
