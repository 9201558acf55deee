package voc2yolo

// Dataset configuration files for YOLO training frameworks.

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DatasetConfig is the data file passed to the detection framework. Image directories are
// relative to Path; the framework derives label directories by replacing "images" with "labels".
type DatasetConfig struct {
	Path  string         `yaml:"path"`
	Train []string       `yaml:"train"`
	Val   []string       `yaml:"val"`
	Test  []string       `yaml:"test,omitempty"`
	Names map[int]string `yaml:"names"`
}

// NewDatasetConfig returns the config for a dataset converted to root with the given training
// and validation splits. The validation splits double as test splits.
func NewDatasetConfig(root string, train, val []Split, names *Taxonomy) DatasetConfig {
	cfg := DatasetConfig{
		Path:  root,
		Train: splitImageDirs(train),
		Val:   splitImageDirs(val),
		Test:  splitImageDirs(val),
		Names: make(map[int]string, names.Len()),
	}
	for id, name := range names.Names() {
		cfg.Names[id] = name
	}
	return cfg
}

func splitImageDirs(splits []Split) []string {
	dirs := make([]string, len(splits))
	for i, s := range splits {
		dirs[i] = filepath.ToSlash(filepath.Join("images", s.String()))
	}
	return dirs
}

// Taxonomy returns the class names as a taxonomy. IDs must be contiguous starting at 0.
func (c DatasetConfig) Taxonomy() (*Taxonomy, error) {
	names := make([]string, len(c.Names))
	for id, name := range c.Names {
		if id < 0 || id >= len(names) {
			return nil, fmt.Errorf("class ID %d out of range [0, %d)", id, len(names))
		}
		names[id] = name
	}
	return NewTaxonomy(names...)
}

// WriteDatasetConfig writes cfg as YAML to path.
func WriteDatasetConfig(path string, cfg DatasetConfig) error {
	enc, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}

// LoadDatasetConfig reads the YAML dataset config at path.
func LoadDatasetConfig(path string) (DatasetConfig, error) {
	var cfg DatasetConfig
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse dataset config %q: %w", path, err)
	}
	return cfg, nil
}

// CheckDatasetConfig validates the dataset config at path if it exists locally. A missing file is
// not an error, since the detection framework resolves names like "VOC.yaml" on its own.
func CheckDatasetConfig(path string) error {
	cfg, err := LoadDatasetConfig(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := cfg.Taxonomy(); err != nil {
		return fmt.Errorf("invalid class names in %q: %w", path, err)
	}
	return nil
}
