package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoki/data-agency/internal/dataset"
)

var (
	loadName string
	loadDesc string
	loadRows int
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a CSV/TSV/XLSX file into the session as a named dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name := loadName
		if name == "" {
			base := filepath.Base(path)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		reg, err := openSession()
		if err != nil {
			return err
		}
		opt := dataset.DefaultLoadOptions()
		if loadRows > 0 {
			opt.MaxRows = loadRows
		}
		d, err := dataset.Load(path, name, opt)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		d.Description = loadDesc
		reg.Put(d)
		if err := saveSession(reg); err != nil {
			return err
		}
		s := d.Schema()
		fmt.Printf("✓ loaded %s: %d rows, %d columns\n", name, s.Rows, len(s.Columns))
		return nil
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadName, "name", "", "dataset name (defaults to the file name)")
	loadCmd.Flags().StringVar(&loadDesc, "desc", "", "free-text description shown to the model")
	loadCmd.Flags().IntVar(&loadRows, "max-rows", 0, "cap on rows read from the source")
	rootCmd.AddCommand(loadCmd)
}

// openSession restores the session registry from the manifest under the
// configured session dir.
func openSession() (*dataset.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	reg, err := dataset.LoadManifest(cfg.SessionDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return reg, nil
}

func saveSession(reg *dataset.Registry) error {
	if err := dataset.SaveManifest(reg, cfg.SessionDir); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
