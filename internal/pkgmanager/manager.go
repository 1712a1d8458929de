// Package pkgmanager locates and loads a project's izb.mod manifest: the
// module name, extra import search roots, and the chunk-cache endpoint the
// CLI driver wires into the compiler and cache client before running a
// program.
package pkgmanager

import (
	"os"
	"path/filepath"
)

// ManifestName is the file Find walks up the directory tree looking for.
const ManifestName = "izb.mod"

// Find walks upward from startDir looking for an izb.mod manifest, the way
// a Go toolchain walks up looking for go.mod. It returns an empty config
// (not an error) if none is found, since a manifest is optional.
func Find(startDir string) (*ModuleConfig, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return ParseModFile(candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return NewModuleConfig(), nil
		}
		dir = parent
	}
}
