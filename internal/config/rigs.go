package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rig is one selectable site in the rigs registry.
type Rig struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle,omitempty"`
	PIN      string `yaml:"pin,omitempty" json:"-"`
}

// HasPIN reports whether selecting this rig requires a PIN.
func (r Rig) HasPIN() bool { return r.PIN != "" }

type rigEntry struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Name     string `yaml:"name"`
	Subtitle string `yaml:"subtitle"`
	Quote    string `yaml:"quote"`
	PIN      string `yaml:"pin"`
}

type rigsFile struct {
	Rigs []rigEntry `yaml:"rigs"`
}

// LoadRigs reads the rigs registry. Both a bare list and a `rigs:` wrapper
// are accepted; entries without an id are skipped, and older files using
// name/quote keys still load.
func LoadRigs(path string) ([]Rig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return RigsFromYAML(data)
}

// RigsFromYAML parses registry entries from raw YAML bytes.
func RigsFromYAML(data []byte) ([]Rig, error) {
	var entries []rigEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		var wrapped rigsFile
		if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("invalid rigs yaml: %w", werr)
		}
		entries = wrapped.Rigs
	}
	var rigs []Rig
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		title := e.Title
		if title == "" {
			title = e.Name
		}
		if title == "" {
			title = e.ID
		}
		subtitle := e.Subtitle
		if subtitle == "" {
			subtitle = e.Quote
		}
		rigs = append(rigs, Rig{ID: e.ID, Title: title, Subtitle: subtitle, PIN: e.PIN})
	}
	return rigs, nil
}

// SaveRigs writes the registry back in the wrapped form.
func SaveRigs(path string, rigs []Rig) error {
	out := struct {
		Rigs []Rig `yaml:"rigs"`
	}{Rigs: rigs}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FindRig looks a rig up by id.
func FindRig(rigs []Rig, id string) (Rig, bool) {
	for _, r := range rigs {
		if r.ID == id {
			return r, true
		}
	}
	return Rig{}, false
}

// GenerateDefaultRigs returns starter rigs.yaml content.
func GenerateDefaultRigs() string {
	return defaultRigsTemplate
}

const defaultRigsTemplate = `rigs:
  - id: default
    title: Default Rig
    subtitle: ""
    # pin: "1234"
`
