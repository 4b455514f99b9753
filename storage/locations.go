package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LocationsFile is the YAML document listing provider locations:
//
//	providers:
//	  - location: s3://bucket/prefix?region=eu-west-1
//	    priority: 10
//	  - location: file:///var/lib/multi-storage
type LocationsFile struct {
	Providers []Location `yaml:"providers"`
}

// LoadLocations decodes a locations document from r.
func LoadLocations(r io.Reader) ([]Location, error) {
	var file LocationsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse locations: %w", err)
	}

	for i, loc := range file.Providers {
		if loc.URI == "" {
			return nil, fmt.Errorf("provider %d has no location", i)
		}
	}
	return file.Providers, nil
}

// LoadLocationsFile reads a locations document from path.
func LoadLocationsFile(path string) ([]Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open locations file: %w", err)
	}
	defer f.Close()
	return LoadLocations(f)
}
