package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads a YAML file mapping nicknames to file names:
//
//	aliases:
//	  MSA: Master_Services_Agreement.pdf
//
// An empty path yields an empty map.
func LoadAliases(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aliases file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse aliases file: %w", err)
	}
	if f.Aliases == nil {
		f.Aliases = map[string]string{}
	}
	for alias, name := range f.Aliases {
		if alias == "" || name == "" {
			return nil, fmt.Errorf("aliases file has an empty entry")
		}
	}
	return f.Aliases, nil
}
