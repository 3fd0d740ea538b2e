// Package builder implements the recipe driver: it fetches, patches,
// configures, builds, installs and packages ICU for one configuration.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/qobs-build/icupack/internal/builder/gen"
	"github.com/qobs-build/icupack/internal/msg"
	"github.com/qobs-build/icupack/internal/recipe"
	"github.com/qobs-build/icupack/internal/shell"
)

// Stage is one step of the recipe
type Stage string

const (
	StageSource    Stage = "source"
	StagePatch     Stage = "patch"
	StageConfigure Stage = "configure"
	StageBuild     Stage = "build"
	StageCheck     Stage = "check"
	StageInstall   Stage = "install"
	StagePackage   Stage = "package"
	StageInfo      Stage = "info"
)

var (
	// AllStages is the full recipe, in order
	AllStages = []Stage{StageSource, StagePatch, StageConfigure, StageBuild, StageCheck, StageInstall, StagePackage, StageInfo}
	// BuildStages turns fetched sources into an installed tree
	BuildStages = []Stage{StagePatch, StageConfigure, StageBuild, StageCheck, StageInstall}
)

// Folders are the directories a recipe run works in.
// Work holds the extracted sources (<name>/source), the build tree
// (<name>/build) and the install prefix (output).
type Folders struct {
	Work    string
	Package string
}

type Builder struct {
	cfg     *recipe.Config
	params  recipe.Params
	folders Folders

	Runner  shell.Runner
	HTTP    *http.Client
	Capture gen.CaptureFunc
	Getenv  func(string) string
	// GitBase is where git checkouts of the config scripts are cached
	GitBase string
	TempDir string

	gen gen.Generator
}

// New returns a builder with the default runner, http client and environment
func New(cfg *recipe.Config, params recipe.Params, folders Folders) (*Builder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var err error
	if folders.Work, err = filepath.Abs(folders.Work); err != nil {
		return nil, err
	}
	if folders.Package, err = filepath.Abs(folders.Package); err != nil {
		return nil, err
	}
	return &Builder{
		cfg:     cfg,
		params:  params,
		folders: folders,
		Runner:  shell.ExecRunner{},
		HTTP:    http.DefaultClient,
		Capture: captureOutput,
		Getenv:  os.Getenv,
		TempDir: os.TempDir(),
	}, nil
}

func captureOutput(ctx context.Context, c shell.Command) (string, error) {
	var out bytes.Buffer
	err := shell.ExecRunner{Stdout: &out, Quiet: true}.Run(ctx, c)
	return out.String(), err
}

func (b *Builder) Folders() Folders { return b.folders }

func (b *Builder) rootDir() string   { return filepath.Join(b.folders.Work, b.cfg.Package.Name) }
func (b *Builder) sourceDir() string { return filepath.Join(b.rootDir(), "source") }
func (b *Builder) buildDir() string  { return filepath.Join(b.rootDir(), "build") }
func (b *Builder) outputDir() string { return filepath.Join(b.folders.Work, "output") }

// Run executes stages in order and stops at the first failure. The check
// stage only runs when unit tests are enabled.
func (b *Builder) Run(ctx context.Context, stages ...Stage) error {
	for _, stage := range stages {
		if stage == StageCheck && !b.params.WithUnitTests {
			continue
		}
		msg.Info("%s stage for %s/%s", stage, b.cfg.Package.Name, b.cfg.Package.Version)
		if err := b.runStage(ctx, stage); err != nil {
			return &StageError{Stage: stage, Err: err}
		}
	}
	return nil
}

func (b *Builder) runStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StageSource:
		return b.Source(ctx)
	case StagePatch:
		return b.Patch(ctx)
	case StageConfigure:
		return b.Configure(ctx)
	case StageBuild:
		return b.make(ctx, "-j", strconv.Itoa(b.params.Jobs))
	case StageCheck:
		return b.make(ctx, "check")
	case StageInstall:
		return b.Install(ctx)
	case StagePackage:
		return b.Package()
	case StageInfo:
		_, err := b.WriteInfo()
		return err
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// generator returns the configure/make generator for the target platform.
// On Windows this locates the POSIX layer and captures the MSVC environment.
func (b *Builder) generator(ctx context.Context) (gen.Generator, error) {
	if b.gen != nil {
		return b.gen, nil
	}
	if !b.params.IsWindows() {
		b.gen = gen.NewUnixGen(b.params)
		return b.gen, nil
	}

	layer, err := shell.ParseLayer(b.params.MSVCPlatform)
	if err != nil {
		return nil, err
	}
	root, platform, err := b.layerRoot(layer)
	if err != nil {
		return nil, err
	}
	env, err := b.msvcEnv(ctx)
	if err != nil {
		return nil, err
	}
	b.gen = gen.NewLayerGen(layer, root, platform.BinDirs, b.params.Bits(), env)
	return b.gen, nil
}

// Configure runs runConfigureICU from a fresh build directory
func (b *Builder) Configure(ctx context.Context) error {
	g, err := b.generator(ctx)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(b.buildDir()); err != nil {
		return err
	}
	if err := os.MkdirAll(b.buildDir(), 0755); err != nil {
		return err
	}
	c, err := g.Configure(b.buildDir(), "../source/runConfigureICU", ConfigureArgs(b.params, g, b.outputDir()))
	if err != nil {
		return err
	}
	return b.Runner.Run(ctx, c)
}

func (b *Builder) makeArgs(args ...string) []string {
	verbosity := "VERBOSE=1"
	if b.params.Silent {
		verbosity = "--silent"
	}
	return append([]string{verbosity}, args...)
}

func (b *Builder) make(ctx context.Context, args ...string) error {
	g, err := b.generator(ctx)
	if err != nil {
		return err
	}
	c, err := g.Make(b.buildDir(), b.makeArgs(args...)...)
	if err != nil {
		return err
	}
	return b.Runner.Run(ctx, c)
}

// Install runs make install and, on macOS, gives the installed libraries
// relative install names
func (b *Builder) Install(ctx context.Context) error {
	if err := b.make(ctx, "install"); err != nil {
		return err
	}
	if b.params.OS == recipe.OSMacos {
		return b.fixInstallNames(ctx)
	}
	return nil
}
