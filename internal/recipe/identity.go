package recipe

import (
	"crypto/sha1"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
)

// normalizedOptions do not change the produced binaries, so every value of
// them maps to the same package
var normalizedOptions = []string{"msvc_platform", "with_unit_tests", "silent"}

// IdentityText renders the settings and options that make up the package
// identity, one sorted key=value per line
func (p Params) IdentityText() string {
	options := p.Options()
	for _, name := range normalizedOptions {
		options[name] = "any"
	}

	var sb strings.Builder
	writeSection(&sb, "settings", p.Settings())
	writeSection(&sb, "options", options)
	return sb.String()
}

func writeSection(sb *strings.Builder, name string, values map[string]string) {
	sb.WriteString("[" + name + "]\n")
	for _, k := range slices.Sorted(maps.Keys(values)) {
		sb.WriteString("    " + k + "=" + values[k] + "\n")
	}
}

// Identity returns the package identity fingerprint
func (p Params) Identity() string {
	sum := sha1.Sum([]byte(p.IdentityText()))
	return hex.EncodeToString(sum[:])
}
