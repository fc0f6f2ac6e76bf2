package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults holds locations and identities resolved from the environment.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	// Account is the caller used when a command is given no --as flag.
	Account string
}

// LogDir is where a config generated from these defaults puts its logs.
func (d Defaults) LogDir() string {
	return filepath.Join(d.BaseDir, "log")
}

// GetDefaults resolves the environment in this order:
//
//	config:  $REPUTE_CONFIG_PATH, $XDG_CONFIG_HOME/repute.toml, ~/.config/repute.toml
//	data:    $REPUTE_HOME, $XDG_DATA_HOME/repute, ~/.local/share/repute
//	account: $REPUTE_ACCOUNT
func GetDefaults() (Defaults, error) {
	configPath, err := resolve("REPUTE_CONFIG_PATH", "XDG_CONFIG_HOME", "repute.toml", ".config")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := resolve("REPUTE_HOME", "XDG_DATA_HOME", "repute", ".local", "share")
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		Account:    os.Getenv("REPUTE_ACCOUNT"),
	}, nil
}

// resolve returns $override if set, else name under $xdg if set, else name
// under the home-relative fallback directories.
func resolve(override, xdg, name string, fallback ...string) (string, error) {
	if p := os.Getenv(override); p != "" {
		return p, nil
	}
	if dir := os.Getenv(xdg); dir != "" {
		return filepath.Join(dir, name), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append(append([]string{home}, fallback...), name)...), nil
}
