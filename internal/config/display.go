package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/albapepper/matchstats/internal/display"
	"github.com/albapepper/matchstats/internal/render"
)

// Display is the lobby display layout read from DISPLAY_CONFIG_FILE.
//
//	duration_seconds: 30
//	locations:
//	  - {world: lobby, x: 0.5, y: 64, z: -3}
//	templates:
//	  header: ["&6{game_name} &7ended"]
//	  player_line: "&f{player_name}: {kills}"
//	  footer: []
//	  constants: {season: "3"}
type Display struct {
	DurationSeconds int                `yaml:"duration_seconds"`
	Locations       []display.Location `yaml:"locations"`
	Templates       render.Templates   `yaml:"templates"`
}

// DefaultDisplay is used when no file is configured.
func DefaultDisplay() Display {
	return Display{DurationSeconds: 30, Templates: render.DefaultTemplates()}
}

// displayFile is the on-disk shape. A nil DurationSeconds means the key was
// absent.
type displayFile struct {
	DurationSeconds *int               `yaml:"duration_seconds"`
	Locations       []display.Location `yaml:"locations"`
	Templates       render.Templates   `yaml:"templates"`
}

// LoadDisplay reads the YAML file at path. An empty path or a missing file
// yields DefaultDisplay. Keys absent from the file keep their defaults; an
// explicitly empty header or footer list disables that group, and
// duration_seconds <= 0 keeps the display until the next match replaces it.
func LoadDisplay(path string) (Display, error) {
	d := DefaultDisplay()
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	var raw displayFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return DefaultDisplay(), fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}

	if raw.DurationSeconds != nil {
		d.DurationSeconds = *raw.DurationSeconds
	}
	d.Locations = raw.Locations
	t := raw.Templates
	if t.Header != nil {
		d.Templates.Header = t.Header
	}
	if t.PlayerLine != "" {
		d.Templates.PlayerLine = t.PlayerLine
	}
	if t.Footer != nil {
		d.Templates.Footer = t.Footer
	}
	for k, v := range t.Constants {
		d.Templates.Constants[k] = v
	}
	for _, loc := range d.Locations {
		if loc.World == "" {
			return DefaultDisplay(), fmt.Errorf("%w: %s: location without world", ErrConfiguration, path)
		}
	}
	return d, nil
}
