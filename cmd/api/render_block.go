package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumiforge/docbuilder-backend/internal/documents"
)

var renderBlockCmd = &cobra.Command{
	Use:   "render-block <definition-id>",
	Short: "Render one block configuration to LaTeX",
	Long: `Render a block configuration with a definition from the catalog and print
the LaTeX fragment. With --standalone the fragment is wrapped into a complete
document, including its packages and colors.`,
	Args: cobra.ExactArgs(1),
	RunE: runRenderBlock,
}

func init() {
	renderBlockCmd.Flags().StringP("input", "i", "-", "block configuration JSON file (- for stdin)")
	renderBlockCmd.Flags().Bool("standalone", false, "wrap the fragment into a full document")
	rootCmd.AddCommand(renderBlockCmd)
}

func runRenderBlock(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	registry, err := loadCatalog(cfg.Catalog.Dir, log)
	if err != nil {
		return err
	}
	def, err := registry.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("input")
	blockConfig, err := readBlockConfig(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	if err := def.ValidateConfig(blockConfig); err != nil {
		return err
	}

	source := documents.RenderBlock(def, blockConfig)
	if standalone, _ := cmd.Flags().GetBool("standalone"); standalone {
		now := time.Now().UTC()
		source = documents.AssembleSource([]documents.DocumentBlock{{
			ID:          "standalone",
			BlockDefID:  def.ID,
			Name:        def.Name,
			Config:      blockConfig,
			LatexSource: source,
			Packages:    def.RequiredPackages,
			CreatedAt:   now,
			UpdatedAt:   now,
		}}, nil)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), source)
	return err
}

func readBlockConfig(stdin io.Reader, path string) (map[string]any, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening block config: %w", err)
		}
		defer f.Close()
		r = f
	}
	var blockConfig map[string]any
	if err := json.NewDecoder(r).Decode(&blockConfig); err != nil {
		return nil, fmt.Errorf("decoding block config: %w", err)
	}
	if blockConfig == nil {
		blockConfig = map[string]any{}
	}
	return blockConfig, nil
}
