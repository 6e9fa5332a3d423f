package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	return LoadFs(afero.NewBasePathFs(afero.NewOsFs(), path))
}

// LoadFs loads the configuration from the root of fsys.
func LoadFs(fsys afero.Fs) (*Configuration, error) {
	configContents, err := afero.ReadFile(fsys, ConfigurationName)
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	out.configFs = fsys
	return &out, nil
}
