// Package latex turns block templates and their configuration into LaTeX
// source: placeholder substitution, color definitions, package and page
// preambles and full document assembly.
package latex

import (
	"regexp"
	"sort"
	"strings"
)

var leftoverPlaceholder = regexp.MustCompile(`\$\{[^}]+\}`)

// segment is a span of the document under construction. Template segments
// still carry the stored escaping (doubled backslashes, literal \n and \t)
// while value segments are final LaTeX and must never be unescaped.
type segment struct {
	text     string
	template bool
}

type fragment []segment

// Compile renders a stored block template into final LaTeX. Rule
// placeholders are substituted first, then plain ${key} config references;
// remaining placeholders are dropped and the stored escaping of the template
// text is undone last. Output is deterministic for identical inputs.
func Compile(template string, rules map[string]VariableRule, config map[string]any) string {
	frag := fragment{{text: template, template: true}}

	for _, name := range sortedKeys(rules) {
		frag = frag.replace("${"+name+"}", rules[name].evaluate(config))
	}
	for _, key := range sortedKeys(config) {
		frag = frag.replace("${"+key+"}", Stringify(config[key]))
	}
	return frag.stripPlaceholders().render()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f fragment) replace(token, value string) fragment {
	out := make(fragment, 0, len(f))
	for _, s := range f {
		if !strings.Contains(s.text, token) {
			out = append(out, s)
			continue
		}
		for i, part := range strings.Split(s.text, token) {
			if i > 0 && value != "" {
				out = append(out, segment{text: value})
			}
			if part != "" {
				out = append(out, segment{text: part, template: s.template})
			}
		}
	}
	return out
}

func (f fragment) stripPlaceholders() fragment {
	out := make(fragment, 0, len(f))
	for _, s := range f {
		s.text = leftoverPlaceholder.ReplaceAllString(s.text, "")
		if s.text != "" {
			out = append(out, s)
		}
	}
	return out
}

func (f fragment) render() string {
	var b strings.Builder
	for _, s := range f {
		if s.template {
			b.WriteString(unescapeStored(s.text))
		} else {
			b.WriteString(s.text)
		}
	}
	return trimTrailingSpace(b.String())
}

// unescapeStored undoes the escaping applied when templates are stored:
// four backslashes become two, and \n or \t become newline or tab unless
// they start a control word such as \newline or \textbf.
func unescapeStored(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, `\\\\`):
			b.WriteString(`\\`)
			i += 4
		case strings.HasPrefix(rest, `\\`):
			b.WriteString(`\\`)
			i += 2
		case strings.HasPrefix(rest, `\n`) && !letterAt(s, i+2):
			b.WriteByte('\n')
			i += 2
		case strings.HasPrefix(rest, `\t`) && !letterAt(s, i+2):
			b.WriteByte('\t')
			i += 2
		default:
			b.WriteByte('\\')
			i++
		}
	}
	return b.String()
}

func letterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func trimTrailingSpace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

func (r VariableRule) evaluate(config map[string]any) string {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		if part, ok := evaluateField(f, config); ok {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, r.Combine)
}

func evaluateField(f Field, config map[string]any) (string, bool) {
	switch f := f.(type) {
	case LiteralField:
		if f.Value == nil {
			return "", false
		}
		return Stringify(f.Value), true
	case ConfigField:
		return f.evaluate(config)
	default:
		return "", false
	}
}

func (f ConfigField) evaluate(config map[string]any) (string, bool) {
	v, present := config[f.Key]
	if present {
		for _, skip := range f.SkipIf {
			if sameValue(v, skip) {
				return "", false
			}
		}
	}
	if f.DependsOn != "" && vacant(config[f.DependsOn]) {
		return "", false
	}
	if f.Condition == ConditionTruthy {
		if !truthy(v) {
			return "", false
		}
		if f.HasValue {
			return Stringify(f.Value), true
		}
		return f.Prefix + Stringify(v) + f.Suffix, true
	}
	if blank(v) {
		switch {
		case f.HasDefault:
			return f.Prefix + Stringify(f.Default) + f.Suffix, true
		case f.HasValue:
			return Stringify(f.Value), true
		default:
			return "", false
		}
	}
	return f.Prefix + Stringify(v) + f.Suffix, true
}
