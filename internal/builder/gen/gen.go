package gen

import "github.com/qobs-build/icupack/internal/shell"

// Generator turns the configure and make steps of the ICU build into commands
// for one platform
type Generator interface {
	// Platform is the runConfigureICU platform name, e.g. MSYS/MSVC
	Platform() string
	// HostArgs are extra configure arguments the platform needs
	HostArgs() []string
	// TranslatePath converts a native path to the form the build tools expect
	TranslatePath(p string) string
	// Configure runs script with args inside dir
	Configure(dir, script string, args []string) (shell.Command, error)
	// Make runs make with args inside dir
	Make(dir string, args ...string) (shell.Command, error)
}
