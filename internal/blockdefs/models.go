// Package blockdefs holds the block definitions documents are built from:
// the stored LaTeX template, its variable rules, the JSON schema describing
// the block configuration and the packages the block needs.
package blockdefs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumiforge/docbuilder-backend/internal/latex"
)

// WidgetTextarea marks config fields holding rich-text documents.
const WidgetTextarea = "textarea"

var (
	// ErrNotFound is returned when a definition does not exist.
	ErrNotFound = errors.New("blockdefs: resource not found")
	// ErrInvalidInput indicates a definition or config failed validation.
	ErrInvalidInput = errors.New("blockdefs: invalid input")
)

// Definition is an authored block type. The core only reads definitions.
type Definition struct {
	ID               string                        `json:"id"`
	Name             string                        `json:"name"`
	Category         string                        `json:"category,omitempty"`
	LatexTemplate    string                        `json:"latexTemplate"`
	VariableRules    map[string]latex.VariableRule `json:"variableRules"`
	ConfigSchema     map[string]any                `json:"configSchema"`
	RequiredPackages []latex.Package               `json:"requiredPackages"`
	UpdatedAt        time.Time                     `json:"updatedAt"`

	schema *compiledSchema
}

type compiledSchema struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// Validate ensures the definition is usable for compilation.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(d.LatexTemplate) == "" {
		return errors.New("latexTemplate is required")
	}
	for i, p := range d.RequiredPackages {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("requiredPackages[%d].name is required", i)
		}
	}
	if _, err := d.compiled(); err != nil {
		return fmt.Errorf("configSchema: %w", err)
	}
	return nil
}

// TextareaFields lists the config keys whose schema property declares the
// textarea widget, sorted.
func (d *Definition) TextareaFields() []string {
	props, _ := d.ConfigSchema["properties"].(map[string]any)
	var out []string
	for key, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if widget, _ := prop["ui:widget"].(string); widget == WidgetTextarea {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// ValidateConfig checks a block configuration against the config schema.
// Definitions without a schema accept any configuration.
func (d *Definition) ValidateConfig(config map[string]any) error {
	sch, err := d.compiled()
	if err != nil {
		return fmt.Errorf("block %s: %w: configSchema: %v", d.ID, ErrInvalidInput, err)
	}
	if sch == nil {
		return nil
	}
	// jsonschema expects the value shapes produced by encoding/json.
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("block %s: %w: %v", d.ID, ErrInvalidInput, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("block %s: %w: %v", d.ID, ErrInvalidInput, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("block %s: %w: %v", d.ID, ErrInvalidInput, err)
	}
	return nil
}

func (d *Definition) compiled() (*jsonschema.Schema, error) {
	if d.schema == nil {
		d.schema = &compiledSchema{}
	}
	c := d.schema
	c.once.Do(func() {
		if len(d.ConfigSchema) == 0 {
			return
		}
		raw, err := json.Marshal(d.ConfigSchema)
		if err != nil {
			c.err = err
			return
		}
		loc := "blockdefs://definitions/" + url.PathEscape(d.ID) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(loc, bytes.NewReader(raw)); err != nil {
			c.err = err
			return
		}
		c.schema, c.err = compiler.Compile(loc)
	})
	return c.schema, c.err
}
