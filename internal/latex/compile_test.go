package latex

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRules(t *testing.T, raw string) map[string]VariableRule {
	t.Helper()
	var rules map[string]VariableRule
	require.NoError(t, json.Unmarshal([]byte(raw), &rules))
	return rules
}

func TestCompilePlainKey(t *testing.T) {
	got := Compile(`\textbf{${title}}`, map[string]VariableRule{}, map[string]any{"title": "Hello"})
	assert.Equal(t, `\textbf{Hello}`, got)
}

func TestCompileRuleFields(t *testing.T) {
	rules := decodeRules(t, `{
		"opts": {"combine": ",", "fields": [
			{"key": "size", "prefix": "size=", "default": "10pt"},
			{"key": "bold", "condition": "truthy", "value": "bold"},
			{"key": "style", "skipIf": ["none", ""]},
			{"key": "caption", "dependsOn": "showCaption", "prefix": "caption={", "suffix": "}"},
			{"value": "final"}
		]}
	}`)

	tests := []struct {
		name   string
		config map[string]any
		want   string
	}{
		{"defaults", map[string]any{}, "[size=10pt,final]"},
		{"all set", map[string]any{
			"size": "12pt", "bold": true, "style": "italic",
			"caption": "Fig", "showCaption": true,
		}, "[size=12pt,bold,italic,caption={Fig},final]"},
		{"skipped style", map[string]any{"style": "none"}, "[size=10pt,final]"},
		{"dependency unset", map[string]any{"caption": "Fig", "showCaption": false}, "[size=10pt,final]"},
		{"falsy condition", map[string]any{"bold": 0.0}, "[size=10pt,final]"},
		{"blank uses default", map[string]any{"size": ""}, "[size=10pt,final]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile("[${opts}]", rules, tt.config))
		})
	}
}

func TestCompileTruthyWithoutValueUsesConfig(t *testing.T) {
	rules := decodeRules(t, `{"w": {"combine": "", "fields": [
		{"key": "width", "condition": "truthy", "prefix": "width=", "suffix": "cm"}
	]}}`)
	assert.Equal(t, "width=3.5cm", Compile("${w}", rules, map[string]any{"width": 3.5}))
	assert.Equal(t, "", Compile("${w}", rules, map[string]any{"width": ""}))
}

func TestCompileDefaultFallsBackToValue(t *testing.T) {
	rules := decodeRules(t, `{"x": {"combine": "", "fields": [{"key": "k", "value": "fallback", "prefix": "p"}]}}`)
	assert.Equal(t, "fallback", Compile("${x}", rules, nil))
}

func TestCompileReplacesEveryOccurrence(t *testing.T) {
	got := Compile("${a}-${a}-${a}", nil, map[string]any{"a": "x"})
	assert.Equal(t, "x-x-x", got)
}

func TestCompileStripsUnknownPlaceholders(t *testing.T) {
	got := Compile(`\section{${title}} ${missing} ${ also missing }`, nil, map[string]any{})
	assert.Equal(t, `\section{}`, got)
}

func TestCompileNeverLeaksPlaceholders(t *testing.T) {
	rules := decodeRules(t, `{"a": {"combine": "", "fields": [{"value": "${b} and ${nope}"}]}}`)
	got := Compile("${a}", rules, map[string]any{"b": "B"})
	assert.Equal(t, "B and", got)
	assert.False(t, regexp.MustCompile(`\$\{[^}]+\}`).MatchString(got))
}

func TestCompileIsDeterministic(t *testing.T) {
	rules := decodeRules(t, `{
		"a": {"combine": " ", "fields": [{"key": "x"}, {"key": "y", "default": "dy"}]},
		"b": {"combine": "", "fields": [{"value": 1}]}
	}`)
	cfg := map[string]any{"x": "1", "z": []any{"p", "q"}, "n": 2.0}
	tpl := `${a}|${b}|${z}|${n}|\\\\|${x}`
	first := Compile(tpl, rules, cfg)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Compile(tpl, rules, cfg))
	}
	assert.Equal(t, `1 dy|1|p,q|2|\\|1`, first)
}

func TestCompileUnescapesOnlyTemplateText(t *testing.T) {
	tpl := `\\\\ line\n\t1 \newline \textbf{${body}}   `
	got := Compile(tpl, nil, map[string]any{"body": `a\nb \\\\ c`})
	assert.Equal(t, "\\\\ line\n\t1 \\newline \\textbf{a\\nb \\\\\\\\ c}", got)
}

func TestCompileUnescapeLineBreaks(t *testing.T) {
	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"newline before digit", `a\n1`, "a\n1"},
		{"newline before brace", `\section{x}\n{y}`, "\\section{x}\n{y}"},
		{"tab before space", `a\t b`, "a\t b"},
		{"trailing newline", `end\n`, "end\n"},
		{"control word", `\newline \textbf{x}`, `\newline \textbf{x}`},
		// A stored line break directly followed by a letter reads as a control word.
		{"letter after newline", `Name:\nAddress\tTotal`, `Name:\nAddress\tTotal`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.tpl, nil, nil))
		})
	}
}

func TestCompileTrimsTrailingWhitespace(t *testing.T) {
	got := Compile("a  \nb\t\n${v}", nil, map[string]any{"v": "c  "})
	assert.Equal(t, "a\nb\nc", got)
}

func TestCompileColorName(t *testing.T) {
	rules := decodeRules(t, `{"color": {"combine": "", "fields": [{"key": "color"}]}}`)
	cfg := map[string]any{"color": "#3b82f6"}

	reg := NewColorRegistry()
	ExtractColors(cfg, reg)
	got := Compile(`\textcolor{${color}}{x}`, rules, ReplaceColors(cfg, reg))

	assert.NotContains(t, got, "#3b82f6")
	assert.Regexp(t, `^\\textcolor\{color[0-9a-f]{8}\}\{x\}$`, got)
	assert.Equal(t, `\textcolor{`+ColorName("#3b82f6")+`}{x}`, got)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "12", Stringify(12.0))
	assert.Equal(t, "1.25", Stringify(1.25))
	assert.Equal(t, "7", Stringify(7))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "a,,1", Stringify([]any{"a", nil, 1.0}))
	assert.Equal(t, "[object Object]", Stringify(map[string]any{"a": 1}))
}

func TestVariableRuleJSONRoundTrip(t *testing.T) {
	raw := `{"combine":", ","fields":[{"value":"lit"},{"key":"k","prefix":"p","suffix":"s","default":"d","condition":"truthy","skipIf":["x"],"dependsOn":"o","value":"v"}]}`
	var rule VariableRule
	require.NoError(t, json.Unmarshal([]byte(raw), &rule))
	require.Len(t, rule.Fields, 2)
	assert.Equal(t, LiteralField{Value: "lit"}, rule.Fields[0])

	cf, ok := rule.Fields[1].(ConfigField)
	require.True(t, ok)
	assert.True(t, cf.HasDefault)
	assert.True(t, cf.HasValue)
	assert.Equal(t, []any{"x"}, cf.SkipIf)

	out, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
