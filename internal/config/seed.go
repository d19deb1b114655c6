package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"Pixel_Canvas/internal/service"
)

//go:embed worlds.yaml
var defaultWorlds []byte

type worldsFile struct {
	Worlds []worldEntry `yaml:"worlds"`
}

type worldEntry struct {
	Name    string   `yaml:"name"`
	Default bool     `yaml:"default"`
	Palette []string `yaml:"palette"`
}

// LoadWorlds path 为空时使用内置的 worlds.yaml
func LoadWorlds(path string) ([]service.WorldSeed, error) {
	raw := defaultWorlds
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return ParseWorlds(raw)
}

func ParseWorlds(raw []byte) ([]service.WorldSeed, error) {
	var f worldsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("worlds.yaml: %w", err)
	}
	seeds := make([]service.WorldSeed, 0, len(f.Worlds))
	for _, w := range f.Worlds {
		seeds = append(seeds, service.WorldSeed{Name: w.Name, Default: w.Default, Palette: w.Palette})
	}
	return seeds, nil
}
