package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/arthur-debert/dotter/pkg/errors"
)

// GetHomeDirectory returns the user's home directory. It first tries
// os.UserHomeDir(), then falls back to the HOME environment variable.
func GetHomeDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil && homeDir != "" {
		return homeDir, nil
	}

	homeDir = os.Getenv("HOME")
	if homeDir != "" {
		return homeDir, nil
	}

	return "", errors.New(errors.ErrFilesystem, "unable to determine home directory: neither os.UserHomeDir() nor HOME environment variable are available")
}

// ExpandHome expands a leading "~" to the user's home directory, the
// tilde-expansion convenience the loader applies to every Target
// (§6.1, mirroring the original implementation's shellexpand::tilde).
// Any other path is returned unchanged.
func ExpandHome(path string) (string, error) {
	if path == "~" {
		return GetHomeDirectory()
	}

	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		homeDir, err := GetHomeDirectory()
		if err != nil {
			return "", fmt.Errorf("cannot expand ~: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	return path, nil
}
