package blockdefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// catalogFile is the TOML layout of one definition file.
type catalogFile struct {
	ID               string          `toml:"id"`
	Name             string          `toml:"name"`
	Category         string          `toml:"category"`
	LatexTemplate    string          `toml:"latex_template"`
	RequiredPackages []latex.Package `toml:"required_packages"`
	VariableRules    map[string]any  `toml:"variable_rules"`
	ConfigSchema     map[string]any  `toml:"config_schema"`
}

// LoadFile parses one TOML definition file. The id defaults to the file name
// without extension.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Definition{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if f.ID == "" {
		f.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	def := Definition{
		ID:               f.ID,
		Name:             f.Name,
		Category:         f.Category,
		LatexTemplate:    f.LatexTemplate,
		RequiredPackages: f.RequiredPackages,
		ConfigSchema:     f.ConfigSchema,
	}
	// Rules share the JSON decoder so both sources pick field variants the same way.
	if len(f.VariableRules) > 0 {
		raw, err := json.Marshal(f.VariableRules)
		if err != nil {
			return Definition{}, fmt.Errorf("encoding variable_rules of %s: %w", f.ID, err)
		}
		if err := json.Unmarshal(raw, &def.VariableRules); err != nil {
			return Definition{}, fmt.Errorf("decoding variable_rules of %s: %w", f.ID, err)
		}
	}
	if def.ConfigSchema != nil {
		// normalise TOML integer types to JSON numbers
		raw, err := json.Marshal(def.ConfigSchema)
		if err != nil {
			return Definition{}, fmt.Errorf("encoding config_schema of %s: %w", f.ID, err)
		}
		def.ConfigSchema = nil
		if err := json.Unmarshal(raw, &def.ConfigSchema); err != nil {
			return Definition{}, fmt.Errorf("decoding config_schema of %s: %w", f.ID, err)
		}
	}
	return def, nil
}

// LoadDir parses every *.toml file of dir in name order.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func isCatalogFile(name string) bool {
	return strings.HasSuffix(name, ".toml") && !strings.HasPrefix(name, ".")
}
