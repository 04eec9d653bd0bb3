// Package manifest loads the descriptor an app package ships in its root
// directory. appinfo.json is the canonical name; appinfo.yaml, appinfo.yml
// and appinfo.toml are accepted when no JSON descriptor is present.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// FileNames lists descriptor names in lookup order
var FileNames = []string{"appinfo.json", "appinfo.yaml", "appinfo.yml", "appinfo.toml"}

// Manifest describes how to launch an app
type Manifest struct {
	EntryPoint  string   `json:"entry_point" yaml:"entry_point" toml:"entry_point"`
	Args        []string `json:"args" yaml:"args" toml:"args"`
	PostInstall string   `json:"post_install" yaml:"post_install" toml:"post_install"`
	Version     string   `json:"version" yaml:"version" toml:"version"`

	// Path is the descriptor file the manifest was read from
	Path string `json:"-" yaml:"-" toml:"-"`
}

// Load reads the first descriptor found in dir.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrManifestMissing, err)
		}

		m, err := decode(name, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrManifestInvalid, name, err)
		}
		m.Path = path
		return m, nil
	}
	return nil, types.ErrManifestMissing
}

// Validate checks the fields required to launch the app.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.EntryPoint) == "" {
		return types.ErrEntryPointMissing
	}
	return nil
}

// HasHook reports whether a post-install command is declared.
func (m *Manifest) HasHook() bool {
	return strings.TrimSpace(m.PostInstall) != ""
}

func decode(name string, data []byte) (*Manifest, error) {
	var m Manifest
	var err error
	switch filepath.Ext(name) {
	case ".json":
		err = sonic.ConfigStd.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("unsupported descriptor %s", name)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
