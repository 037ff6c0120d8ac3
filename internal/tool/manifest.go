package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File names used by the directory layout.
const (
	ManifestFile   = "manifest.json"
	ServersFile    = "mcp_servers.json"
	defaultPathFmt = "/tool/%s"
)

// ManifestTool is one tool declared in a manifest.
type ManifestTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Path        string          `json:"path,omitempty"`
	Method      string          `json:"method,omitempty"`
}

// Manifest lists the tools offered by one provider server.
type Manifest struct {
	Server string         `json:"server"`
	Tools  []ManifestTool `json:"tools"`
}

// ServerMap maps a server name to its base URL.
type ServerMap map[string]string

// ParseManifest decodes one manifest document.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	m.Server = strings.TrimSpace(m.Server)
	if m.Server == "" {
		return Manifest{}, fmt.Errorf("%w: server is required", ErrManifest)
	}
	return m, nil
}

// LoadManifests reads <root>/<dir>/manifest.json for every sub-directory of
// root, in sorted order. Directories without a manifest are ignored; unusable
// manifests are skipped and reported.
func LoadManifests(root string) ([]Manifest, []error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, []error{fmt.Errorf("tool: reading %s: %w", root, err)}
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	var (
		out  []Manifest
		errs []error
	)
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		path := filepath.Join(root, de.Name(), ManifestFile)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("tool: %s: %w", path, err))
			continue
		}
		m, err := ParseManifest(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("tool: %s: %w", path, err))
			continue
		}
		out = append(out, m)
	}
	return out, errs
}

// LoadServerMap reads a server-name to base-URL map. A missing file yields
// an empty map.
func LoadServerMap(path string) (ServerMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ServerMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tool: reading server map: %w", err)
	}
	var m ServerMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("tool: decoding server map %s: %w", path, err)
	}
	if m == nil {
		m = ServerMap{}
	}
	return m, nil
}

// Source supplies the manifests and server map a roster is built from.
type Source interface {
	Load() ([]Manifest, ServerMap, []error)
}

// DirSource reads manifests under Root and the server map from ServersFile.
// An empty ServersFile means <Root>/mcp_servers.json.
type DirSource struct {
	Root        string
	ServersFile string
}

// Load implements Source. A missing tools directory yields no manifests and
// an error; a missing server map yields an empty map.
func (s DirSource) Load() ([]Manifest, ServerMap, []error) {
	manifests, errs := LoadManifests(s.Root)
	path := s.ServersFile
	if path == "" {
		path = filepath.Join(s.Root, ServersFile)
	}
	servers, err := LoadServerMap(path)
	if err != nil {
		errs = append(errs, err)
		servers = ServerMap{}
	}
	return manifests, servers, errs
}

// StaticSource serves fixed manifests, mainly for tests and the CLI.
type StaticSource struct {
	Manifests []Manifest
	Servers   ServerMap
}

// Load implements Source.
func (s StaticSource) Load() ([]Manifest, ServerMap, []error) {
	servers := s.Servers
	if servers == nil {
		servers = ServerMap{}
	}
	return s.Manifests, servers, nil
}
