// Package seed loads the initial scheme catalog from YAML.
package seed

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"aidledger/internal/scheme/models"
)

type file struct {
	Schemes []models.CreateRequest `yaml:"schemes"`
}

// Load decodes a catalog document. Unknown keys are rejected.
func Load(r io.Reader) ([]models.CreateRequest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode scheme seed: %w", err)
	}
	return f.Schemes, nil
}

// LoadFile reads path. A missing file yields an empty catalog.
func LoadFile(path string) ([]models.CreateRequest, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scheme seed: %w", err)
	}
	return Load(bytes.NewReader(raw))
}
