// Package util provides shared helpers.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ResolveBinary resolves a configured engine binary to an executable
// path. Configured absolute or relative paths are verified directly;
// bare names are searched on PATH. Resolving at startup surfaces a
// missing ffmpeg or yt-dlp before the first job trips over it.
func ResolveBinary(configured string) (string, error) {
	if configured == "" {
		return "", fmt.Errorf("binary path is empty")
	}

	if strings.ContainsRune(configured, os.PathSeparator) {
		if !isExecutable(configured) {
			return "", fmt.Errorf("binary %s is not executable", configured)
		}
		return configured, nil
	}

	path, err := exec.LookPath(configured)
	if err != nil {
		return "", fmt.Errorf("binary %s not found on PATH", configured)
	}
	return path, nil
}

// isExecutable reports whether path is a file with an executable bit
// set for owner, group, or other.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
