package mustache

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v2"
)

// PartialProvider supplies the source text of a named partial. Get
// returns the partial's source and no error if found; empty string
// and no error if the partial genuinely doesn't exist (renders as
// nothing, unless WithErrors(true) is set); or a non-nil error if
// something else went wrong trying to look it up.
type PartialProvider interface {
	Get(name string) (string, error)
}

// FileProvider implements PartialProvider by reading partials from a
// filesystem. When a partial named NAME is requested, FileProvider
// searches each of Paths for a file named NAME followed by each of
// Extensions in turn. The default Paths is the current working
// directory; the default Extensions is "", ".mustache", ".stache". If
// Unsafe is false (the default), a cleaned name beginning with "." is
// rejected so partial names can't escape the listed directories.
type FileProvider struct {
	Paths      []string
	Extensions []string
	Unsafe     bool
}

// Get reads and returns the named partial's source.
func (fp *FileProvider) Get(name string) (string, error) {
	cleanName := name
	if !fp.Unsafe {
		cleanName = path.Clean(name)
		if strings.HasPrefix(cleanName, ".") {
			return "", fmt.Errorf("mustache: unsafe partial name %q", name)
		}
	}

	paths := fp.Paths
	if paths == nil {
		paths = []string{""}
	}
	exts := fp.Extensions
	if exts == nil {
		exts = []string{"", ".mustache", ".stache"}
	}

	for _, p := range paths {
		for _, e := range exts {
			data, err := os.ReadFile(path.Join(p, cleanName+e))
			if err == nil {
				return string(data), nil
			}
		}
	}
	return "", nil
}

var _ PartialProvider = (*FileProvider)(nil)

// StaticProvider implements PartialProvider from an in-memory map of
// partial name to source text.
type StaticProvider struct {
	Partials map[string]string
}

// Get returns the named partial's source from Partials.
func (sp *StaticProvider) Get(name string) (string, error) {
	if sp.Partials != nil {
		if data, ok := sp.Partials[name]; ok {
			return data, nil
		}
	}
	return "", nil
}

var _ PartialProvider = (*StaticProvider)(nil)

// LoadYAMLPartials reads a single YAML document mapping partial name to
// source text (e.g. "header: Hi {{name}}\nfooter: Bye\n") and returns a
// StaticProvider backed by it, a convenience for the common case of
// shipping a template's whole partial set as one manifest file instead
// of one file per partial.
func LoadYAMLPartials(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var partials map[string]string
	if err := yaml.Unmarshal(data, &partials); err != nil {
		return nil, fmt.Errorf("mustache: parse YAML partials %s: %w", path, err)
	}
	return &StaticProvider{Partials: partials}, nil
}
