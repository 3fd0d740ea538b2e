package builder

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/qobs-build/icupack/internal/recipe"
)

// InfoFilename is written into the package folder by the info stage
const InfoFilename = "package_info.json"

// Info is what consumers of the package need to link against it
type Info struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Libs        []string `json:"libs"`
	LibDirs     []string `json:"libdirs"`
	BinDirs     []string `json:"bindirs"`
	IncludeDirs []string `json:"includedirs"`
	Defines     []string `json:"defines"`
	CppFlags    []string `json:"cppflags"`
	// Path entries are appended to PATH of consumers
	Path []string `json:"path"`
}

var libExtensions = []string{".so", ".a", ".lib", ".dylib"}

// LibNames returns the link names of the library files among names: the
// extension goes, and so does the lib prefix except for .lib files.
// Versioned names like libicuuc.so.60 are not libraries by this rule.
func LibNames(names []string) []string {
	var libs []string
	for _, name := range names {
		ext := filepath.Ext(name)
		if !slices.Contains(libExtensions, ext) {
			continue
		}
		lib := strings.TrimSuffix(name, ext)
		if ext != ".lib" {
			lib = strings.TrimPrefix(lib, "lib")
		}
		if lib != "" && !slices.Contains(libs, lib) {
			libs = append(libs, lib)
		}
	}
	slices.Sort(libs)
	return libs
}

// AssembleLibs drops the names carrying the version tag and moves dataLib
// to the end, where the linker needs it
func AssembleLibs(libs []string, vtag, dataLib string) []string {
	out := make([]string, 0, len(libs))
	hasData := false
	for _, lib := range libs {
		switch {
		case vtag != "" && strings.Contains(lib, vtag):
		case dataLib != "" && lib == dataLib:
			hasData = true
		default:
			out = append(out, lib)
		}
	}
	if hasData {
		out = append(out, dataLib)
	}
	return out
}

// CollectInfo inspects the package folder and returns its metadata
func CollectInfo(cfg *recipe.Config, p recipe.Params, packageDir string) (*Info, error) {
	binDir, libDir := p.BinDir(), p.LibDir()
	info := &Info{
		Name:        cfg.Package.Name,
		Version:     cfg.Package.Version,
		LibDirs:     []string{libDir},
		BinDirs:     []string{binDir},
		IncludeDirs: []string{"include"},
		Defines:     []string{},
		CppFlags:    []string{},
		Path:        []string{filepath.Join(packageDir, binDir)},
	}

	entries, err := os.ReadDir(filepath.Join(packageDir, libDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	vtag, _, _ := strings.Cut(cfg.Package.Version, ".")
	info.Libs = AssembleLibs(LibNames(names), vtag, cfg.Info.DataLib)

	if !p.Shared {
		if cfg.Info.StaticDefine != "" {
			info.Defines = append(info.Defines, cfg.Info.StaticDefine)
		}
		info.Libs = append(info.Libs, cfg.Info.SystemLibs[p.OS]...)
	}
	info.CppFlags = append(info.CppFlags, cfg.Info.CppFlags[p.Compiler]...)
	return info, nil
}

// WriteInfo collects the package metadata and stores it in the package folder
func (b *Builder) WriteInfo() (*Info, error) {
	info, err := CollectInfo(b.cfg, b.params, b.folders.Package)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(b.folders.Package, 0755); err != nil {
		return nil, err
	}
	return info, os.WriteFile(filepath.Join(b.folders.Package, InfoFilename), data, 0644)
}

// ReadInfo loads a package_info.json file
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RenderTable prints the metadata as a two-column table
func (info *Info) RenderTable(w io.Writer) error {
	tbl := tablewriter.NewTable(
		w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.On, BetweenRows: tw.On}},
		})),
	)
	tbl.Header([]string{"Field", "Value"})

	join := func(s []string) string { return strings.Join(s, " ") }
	rows := [][]any{
		{"package", info.Name + "/" + info.Version},
		{"libs", join(info.Libs)},
		{"libdirs", join(info.LibDirs)},
		{"bindirs", join(info.BinDirs)},
		{"includedirs", join(info.IncludeDirs)},
		{"defines", join(info.Defines)},
		{"cppflags", join(info.CppFlags)},
		{"PATH", strings.Join(info.Path, string(os.PathListSeparator))},
	}
	if err := tbl.Bulk(rows); err != nil {
		return err
	}
	return tbl.Render()
}
