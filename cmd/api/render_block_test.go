package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingTOML = `
name = "Greeting"
latex_template = 'Hello ${name}'

[[required_packages]]
name = "xcolor"

[config_schema]
type = "object"
required = ["name"]
`

func setupCatalog(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.toml"), []byte(greetingTOML), 0o644))
	viper.Set("catalog.dir", dir)
	viper.Set("storage.signing_secret", "test-secret")
	viper.Set("log.level", "error")
	t.Cleanup(viper.Reset)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	renderBlockCmd.Flags().Set("standalone", "false") //nolint:errcheck
	renderBlockCmd.Flags().Set("input", "-")          //nolint:errcheck
	return out.String(), err
}

func TestRenderBlock(t *testing.T) {
	setupCatalog(t)

	out, err := runCLI(t, `{"name": "World"}`, "render-block", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", out)
}

func TestRenderBlockStandalone(t *testing.T) {
	setupCatalog(t)

	input := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(input, []byte(`{"name": "World"}`), 0o644))

	out, err := runCLI(t, "", "render-block", "greeting", "--input", input, "--standalone")
	require.NoError(t, err)
	assert.Contains(t, out, `\usepackage{xcolor}`)
	assert.Contains(t, out, `\begin{document}`)
	assert.Contains(t, out, "Hello World")
	assert.Contains(t, out, `\end{document}`)
}

func TestRenderBlockRejectsInvalidConfig(t *testing.T) {
	setupCatalog(t)

	_, err := runCLI(t, `{}`, "render-block", "greeting")
	require.Error(t, err)
}

func TestRenderBlockUnknownDefinition(t *testing.T) {
	setupCatalog(t)

	_, err := runCLI(t, `{"name": "x"}`, "render-block", "missing")
	require.Error(t, err)
}

func TestReadBlockConfigDefaultsToEmptyMap(t *testing.T) {
	cfg, err := readBlockConfig(strings.NewReader("null"), "-")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Empty(t, cfg)
}
