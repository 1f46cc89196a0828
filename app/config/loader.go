package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFeed is one feed URL to register at startup.
type SeedFeed struct {
	URL string `yaml:"url"`
}

type seedFile struct {
	Feeds []SeedFeed `yaml:"feeds"`
}

// Loader reads the optional seed feeds file.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load parses the seed file. A missing file is not an error; restarts with
// no seeds configured are normal.
func (l *Loader) Load() ([]SeedFeed, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, seed := range file.Feeds {
		if seed.URL == "" {
			return nil, fmt.Errorf("seed entry %d has no url", i+1)
		}
	}

	return file.Feeds, nil
}
