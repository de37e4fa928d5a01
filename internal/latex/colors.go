package latex

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// IsHexColor reports whether s is a #RRGGBB color.
func IsHexColor(s string) bool {
	return hexColor.MatchString(s)
}

// ColorName returns the LaTeX color name for a hex color. The name depends
// only on the hex string, so recompiling yields the same names.
func ColorName(hexValue string) string {
	sum := md5.Sum([]byte(hexValue))
	return "color" + hex.EncodeToString(sum[:])[:8]
}

type colorEntry struct {
	hex  string
	name string
}

// ColorRegistry maps hex colors to LaTeX color names for one compilation.
// It remembers registration order. It is not safe for concurrent use.
type ColorRegistry struct {
	names   map[string]string
	entries []colorEntry
}

// NewColorRegistry returns an empty registry.
func NewColorRegistry() *ColorRegistry {
	return &ColorRegistry{names: make(map[string]string)}
}

// Register adds hexValue and returns its name. Registering the same value
// again returns the existing name.
func (r *ColorRegistry) Register(hexValue string) (string, error) {
	if !IsHexColor(hexValue) {
		return "", fmt.Errorf("latex: invalid hex color %q", hexValue)
	}
	if name, ok := r.names[hexValue]; ok {
		return name, nil
	}
	name := ColorName(hexValue)
	r.names[hexValue] = name
	r.entries = append(r.entries, colorEntry{hex: hexValue, name: name})
	return name, nil
}

// Name returns the registered name for hexValue.
func (r *ColorRegistry) Name(hexValue string) (string, bool) {
	name, ok := r.names[hexValue]
	return name, ok
}

// Len returns the number of distinct registered colors.
func (r *ColorRegistry) Len() int {
	return len(r.entries)
}

// Definitions returns one \definecolor line per registered color in
// registration order.
func (r *ColorRegistry) Definitions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, defineColor(e.name, e.hex))
	}
	return out
}

func defineColor(name, hexValue string) string {
	rgb := make([]string, 3)
	for i := range rgb {
		n, _ := strconv.ParseUint(hexValue[1+2*i:3+2*i], 16, 8)
		rgb[i] = strconv.FormatFloat(float64(n)/255, 'f', 2, 64)
	}
	return fmt.Sprintf(`\definecolor{%s}{rgb}{%s,%s,%s}`, name, rgb[0], rgb[1], rgb[2])
}

// ExtractColors registers every top-level string value of config that is a
// hex color. Nested objects and arrays are not scanned.
func ExtractColors(config map[string]any, reg *ColorRegistry) {
	for _, key := range sortedKeys(config) {
		if s, ok := config[key].(string); ok && IsHexColor(s) {
			// validated above, Register cannot fail
			_, _ = reg.Register(s)
		}
	}
}

// ReplaceColors returns a shallow copy of config where top-level hex colors
// known to reg are replaced by their names.
func ReplaceColors(config map[string]any, reg *ColorRegistry) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		if s, ok := v.(string); ok {
			if name, ok := reg.Name(s); ok {
				out[k] = name
				continue
			}
		}
		out[k] = v
	}
	return out
}
