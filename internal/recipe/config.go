package recipe

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

// DefaultFilename is looked up in the working directory when --config is not given
const DefaultFilename = "icupack.toml"

//go:embed default.toml
var defaultConfig []byte

type Config struct {
	Package  PackageSection             `toml:"package"`
	Source   SourceSection              `toml:"source"`
	Patches  []PatchSection             `toml:"patch"`
	Options  OptionsSection             `toml:"options"`
	Platform map[string]PlatformSection `toml:"platform"`
	Matrix   MatrixSection              `toml:"matrix"`
	Info     InfoSection                `toml:"info"`
}

// PackageSection defines the [package] section
type PackageSection struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Channel     string `toml:"channel"`
	License     string `toml:"license"`
	Description string `toml:"description"`
	URL         string `toml:"url"`
}

// Reference returns the package manager reference, e.g. icu/60.1@sigmoidal/testing
func (p PackageSection) Reference() string {
	return p.Name + "/" + p.Version + "@" + p.Channel
}

// SourceSection defines the [source] section
type SourceSection struct {
	URL     string `toml:"url"`
	DataURL string `toml:"data_url"`
	// ConfigScripts is either git:<repo url> or an http url containing {file}
	ConfigScripts string   `toml:"config_scripts"`
	ConfigFiles   []string `toml:"config_files"`
}

// PatchSection defines one [[patch]] entry
type PatchSection struct {
	URL   string `toml:"url"`
	When  string `toml:"when"`
	Strip int    `toml:"strip"`
}

// OptionsSection defines the [options] section: recipe option defaults
type OptionsSection struct {
	Shared        bool   `toml:"shared"`
	MSVCPlatform  string `toml:"msvc_platform"`
	DataPackaging string `toml:"data_packaging"`
	WithUnitTests bool   `toml:"with_unit_tests"`
	Silent        bool   `toml:"silent"`
}

// DefaultOptions returns the option values used when [options] leaves them out
func DefaultOptions() OptionsSection {
	return OptionsSection{
		MSVCPlatform:  "msys",
		DataPackaging: "archive",
		Silent:        true,
	}
}

// PlatformSection defines [platform.msys] and [platform.cygwin]
type PlatformSection struct {
	RootEnv      string   `toml:"root_env"`
	DefaultRoots []string `toml:"default_roots"`
	BinDirs      []string `toml:"bin_dirs"`
}

// MatrixSection defines [matrix] and its per-OS subtables
type MatrixSection struct {
	PackageManager string     `toml:"package_manager"`
	Archs          []string   `toml:"archs"`
	BuildTypes     []string   `toml:"build_types"`
	Links          []bool     `toml:"links"`
	Exclude        []string   `toml:"exclude"`
	Report         string     `toml:"report"`
	Win            WinMatrix  `toml:"win"`
	Linux          UnixMatrix `toml:"linux"`
	Macosx         UnixMatrix `toml:"macosx"`
}

type WinMatrix struct {
	Compiler  string   `toml:"compiler"`
	Compilers []string `toml:"compilers"`
	// Labels maps a compiler version to the name used in log files, e.g. 15 -> vs2017
	Labels      map[string]string `toml:"labels"`
	Platforms   []string          `toml:"platforms"`
	PlatformEnv map[string]string `toml:"platform_env"`
}

type UnixMatrix struct {
	Compiler  string   `toml:"compiler"`
	Compilers []string `toml:"compilers"`
	// CC and CXX name the executables to probe; {version} is replaced by the compiler version
	CC  string `toml:"cc"`
	CXX string `toml:"cxx"`
}

// InfoSection defines the [info] section used when publishing package metadata
type InfoSection struct {
	DataLib      string              `toml:"data_lib"`
	StaticDefine string              `toml:"static_define"`
	SystemLibs   map[string][]string `toml:"system_libs"`
	CppFlags     map[string][]string `toml:"cppflags"`
}

// Load reads path, or the embedded default when path is empty and no
// icupack.toml exists in the working directory
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFilename
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, err
	}
	defer f.Close()

	return ParseConfig(bufio.NewReader(f), NewConfigEnv())
}

// Default returns the built-in ICU recipe description
func Default() (*Config, error) {
	return ParseConfig(strings.NewReader(string(defaultConfig)), NewConfigEnv())
}

// DefaultTOML returns the source of the built-in recipe description
func DefaultTOML() []byte {
	return slices.Clone(defaultConfig)
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		default:
			dstField.Set(srcField)
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := toml.Unmarshal([]byte(mustMarshal(data)), dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalTableArray parses an array of tables such as [[patch]]. A bare
// array is not a TOML document, so the entries are decoded under a key.
func unmarshalTableArray[T any](rawCfg map[string]any, name string, dst *[]T) error {
	data, ok := rawCfg[name]
	if !ok {
		return nil
	}
	if _, ok := data.([]any); !ok {
		return fmt.Errorf("invalid [[%s]] section format: expected an array of tables", name)
	}
	var doc struct {
		Entries []T `toml:"entries"`
	}
	if err := toml.Unmarshal([]byte(mustMarshal(map[string]any{"entries": data})), &doc); err != nil {
		return fmt.Errorf("failed to parse [[%s]] section: %w", name, err)
	}
	*dst = doc.Entries
	return nil
}

// unmarshalConditionalSection parses a section whose sub-tables may be keyed
// by an expression, e.g. [options.'host_os == "windows"']. Matching sub-tables
// override the base fields they set.
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env ConfigEnv) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env), expr.AsBool())
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	for expression, condMap := range conditionalFields {
		program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
		if err != nil {
			return fmt.Errorf("failed to compile expression for [%s.%q]: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, expression, err)
		}
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		// start from the current values so fields missing in condMap survive the merge
		condSection := *dst
		if err := toml.Unmarshal([]byte(mustMarshal(condMap)), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env ConfigEnv) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings.
// Keys are left alone so conditional section names survive.
func processExpressions(data any, env ConfigEnv) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

func ParseConfig(rdr io.Reader, env ConfigEnv) (*Config, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	cfg := new(Config)

	// [package] is read first: its name and version feed every template below
	if err := unmarshalSection(rawConfig, "package", &cfg.Package); err != nil {
		return nil, err
	}
	if cfg.Package.Name == "" || cfg.Package.Version == "" {
		return nil, errors.New("[package] requires name and version")
	}
	env.Name = cfg.Package.Name
	env.Version = cfg.Package.Version
	env.Major, _, _ = strings.Cut(env.Version, ".")
	env.Under = strings.ReplaceAll(env.Version, ".", "_")

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in config: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	if err := unmarshalSection(rawConfig, "source", &cfg.Source); err != nil {
		return nil, err
	}
	if err := unmarshalTableArray(rawConfig, "patch", &cfg.Patches); err != nil {
		return nil, err
	}
	// keys missing from [options] keep these defaults
	cfg.Options = DefaultOptions()
	if err := unmarshalConditionalSection(rawConfig, "options", &cfg.Options, env); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "platform", &cfg.Platform); err != nil {
		return nil, err
	}
	if err := unmarshalSection(rawConfig, "matrix", &cfg.Matrix); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "info", &cfg.Info, env); err != nil {
		return nil, err
	}

	if len(cfg.Source.ConfigFiles) == 0 {
		cfg.Source.ConfigFiles = []string{"config.guess", "config.sub"}
	}
	if cfg.Matrix.PackageManager == "" {
		cfg.Matrix.PackageManager = "conan"
	}

	return cfg, nil
}

// ConfigEnv is the expr environment for {{...}} templates and conditional sections
type ConfigEnv struct {
	Name     string            `expr:"name"`
	Version  string            `expr:"version"`
	Major    string            `expr:"version_major"`
	Under    string            `expr:"version_underscore"`
	HostOS   string            `expr:"host_os"`
	HostArch string            `expr:"host_arch"`
	Environ  map[string]string `expr:"environ"`
}

func NewConfigEnv() ConfigEnv {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return ConfigEnv{
		HostOS:   runtime.GOOS,
		HostArch: runtime.GOARCH,
		Environ:  environ,
	}
}
