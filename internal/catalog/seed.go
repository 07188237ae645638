package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Works []Work `yaml:"works"`
}

// LoadSeed reads a works YAML file.
func LoadSeed(path string) ([]Work, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	for i, w := range f.Works {
		if w.Title == "" || w.Author == "" || w.TextPath == "" {
			return nil, fmt.Errorf("seed entry %d: title, author and text_path are required", i)
		}
		if w.Status != "" {
			if _, err := ParseStatus(string(w.Status)); err != nil {
				return nil, fmt.Errorf("seed entry %d: %w", i, err)
			}
		}
	}
	return f.Works, nil
}
