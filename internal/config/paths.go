package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// configNames are the file names looked up in every config directory, in
// load order.
var configNames = []string{"ipcbind.json", "ipcbind.jsonc"}

// Paths locates the user-level configuration of ipcbind.
type Paths struct {
	// Config is $XDG_CONFIG_HOME/ipcbind, or the platform default.
	Config string
}

// GetPaths resolves the user-level paths from the environment.
func GetPaths() *Paths {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = defaultConfigHome()
	}
	return &Paths{Config: filepath.Join(base, "ipcbind")}
}

// Files returns the user-level config files in load order.
func (p *Paths) Files() []string {
	return filesIn(p.Config)
}

// projectFiles returns the config files of a project directory: the
// directory itself first, then its .ipcbind subdirectory.
func projectFiles(dir string) []string {
	return append(filesIn(dir), filesIn(filepath.Join(dir, ".ipcbind"))...)
}

func filesIn(dir string) []string {
	files := make([]string, len(configNames))
	for i, name := range configNames {
		files[i] = filepath.Join(dir, name)
	}
	return files
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return ".config"
}
