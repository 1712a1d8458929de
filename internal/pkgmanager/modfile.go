package pkgmanager

import (
	"fmt"
	"os"
	"strings"
)

// ModuleConfig is the parsed shape of an izb.mod manifest: the module's own
// name, extra source search roots consulted when a file-backed import
// doesn't resolve relative to the importing file, and the command line the
// driver starts (via cache.StartRemote) as the remote chunk-cache subprocess.
type ModuleConfig struct {
	Module        string
	IzbVersion    string
	SearchRoots   []string
	CacheEndpoint string
	Require       map[string]string
}

func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{Require: make(map[string]string)}
}

// ParseModFile reads an izb.mod file. Each non-blank, non-comment line is a
// directive followed by its value(s): "module", "izb", "search", "cache",
// "require".
func ParseModFile(path string) (*ModuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := NewModuleConfig()
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "module":
			if len(parts) >= 2 {
				config.Module = parts[1]
			}
		case "izb":
			if len(parts) >= 2 {
				config.IzbVersion = parts[1]
			}
		case "search":
			if len(parts) >= 2 {
				config.SearchRoots = append(config.SearchRoots, parts[1])
			}
		case "cache":
			if len(parts) >= 2 {
				config.CacheEndpoint = strings.Join(parts[1:], " ")
			}
		case "require":
			if len(parts) >= 3 {
				config.Require[parts[1]] = parts[2]
			}
		}
	}

	return config, nil
}

func (c *ModuleConfig) Save(path string) error {
	var sb strings.Builder

	if c.Module != "" {
		sb.WriteString(fmt.Sprintf("module %s\n\n", c.Module))
	}
	if c.IzbVersion != "" {
		sb.WriteString(fmt.Sprintf("izb %s\n\n", c.IzbVersion))
	}
	for _, root := range c.SearchRoots {
		sb.WriteString(fmt.Sprintf("search %s\n", root))
	}
	if c.CacheEndpoint != "" {
		sb.WriteString(fmt.Sprintf("cache %s\n", c.CacheEndpoint))
	}
	if len(c.Require) > 0 {
		sb.WriteString("\n")
		for pkg, ver := range c.Require {
			sb.WriteString(fmt.Sprintf("require %s %s\n", pkg, ver))
		}
	}

	return os.WriteFile(path, []byte(sb.String()), 0644)
}
