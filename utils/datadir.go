package utils

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultDataDir returns the OS-appropriate base directory devnetd uses when
// --db-path is not given.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("cannot resolve a default data directory: " + err.Error())
	}
	return filepath.Join(home, ".devnetd"), nil
}
