// Package config loads the two accepted configuration forms — the flat
// keyword-tagged file and the structured YAML document — into the shared
// in-memory model tree, and writes both forms back out.
package config

import (
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// Load reads a configuration file, selecting the form by extension:
// .yaml/.yml is the structured form, anything else the flat form.
func Load(path string) (*ibis.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	}
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	return p.ParseFile(path)
}
