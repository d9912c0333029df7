package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yoki/data-agency/internal/utils"
)

const manifestFileName = "datasets.yaml"

// Manifest records which datasets belong to a session workspace. Only source
// pointers and descriptions are persisted; the data itself is re-read from the
// source files on load.
type Manifest struct {
	UpdatedAt time.Time       `yaml:"updated_at"`
	Datasets  []ManifestEntry `yaml:"datasets"`
}

type ManifestEntry struct {
	Name        string `yaml:"name"`
	Source      string `yaml:"source"`
	Description string `yaml:"description,omitempty"`
}

// SaveManifest writes the registry's dataset pointers under dir.
func SaveManifest(r *Registry, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	m := Manifest{UpdatedAt: time.Now()}
	for _, name := range r.List() {
		d, _ := r.Get(name)
		m.Datasets = append(m.Datasets, ManifestEntry{
			Name:        d.Name,
			Source:      d.Source,
			Description: d.Description,
		})
	}
	b, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, manifestFileName), b); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest restores a registry from the manifest under dir, re-reading
// each dataset from its source file. Missing sources are skipped with a
// warning rather than failing the whole session.
func LoadManifest(dir string, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	b, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for _, e := range m.Datasets {
		d, err := Load(e.Source, e.Name, DefaultLoadOptions())
		if err != nil {
			if logger != nil {
				logger.Warn("dataset source unavailable, skipping",
					zap.String("name", e.Name),
					zap.String("source", e.Source),
					zap.Error(err))
			}
			continue
		}
		d.Description = e.Description
		r.Put(d)
	}
	return r, nil
}
