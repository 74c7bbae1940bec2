package config

import (
	"os"
	"path/filepath"
)

// Config file names, in lookup order.
var ConfigFileNames = []string{"changefeed.yaml", "changefeed.yml"}

// maxDiscoveryDepth bounds the upward search for a config file.
const maxDiscoveryDepth = 10

// Project is a directory holding a changefeed config file. Relative paths
// in the config (journal, schema, seed files) resolve against Root.
type Project struct {
	Root       string
	ConfigFile string
}

// Discover walks up from startDir to the nearest directory holding a config
// file. The search stops at a repository root (a directory containing .git)
// so a stray config higher up is never picked.
func Discover(startDir string) (Project, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		dir = startDir
	}
	for range maxDiscoveryDepth {
		if file := configFileIn(dir); file != "" {
			return Project{Root: dir, ConfigFile: file}, true
		}
		if isDir(filepath.Join(dir, ".git")) {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return Project{}, false
}

// ProjectFor returns the project of an explicitly given config file.
func ProjectFor(configFile string) Project {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		abs = configFile
	}
	return Project{Root: filepath.Dir(abs), ConfigFile: configFile}
}

// Resolve makes path absolute against the project root. Empty, absolute
// and ":memory:" paths are returned unchanged.
func (p Project) Resolve(path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}

func configFileIn(dir string) string {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
