package osutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ChmodExecutable sets the executable mode/flag on a file, if not already.
func ChmodExecutable(filename string) error {
	s, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("Failed to retrieve file information of \"%s\" (%s)", filename, err)
	}
	if s.Mode()&0o100 == 0 {
		err = os.Chmod(filename, s.Mode()|0o100)
		if err != nil {
			return fmt.Errorf("Failed to mark \"%s\" as executable (%s)", filename, err)
		}
	}
	return nil
}

// FileExists returns whether or not a file exists on the filesystem. We
// consider any error returned by os.Stat to indicate that the file doesn't
// exist. We could be specific and use os.IsNotExist(err), but most other
// errors also indicate that the file isn't there (or isn't available) so we'll
// just catch them all.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// NormalizeFilePath cleans path into an absolute path: it expands
// environment variables, expands a leading "~/" to the caller's home
// directory, then absolutes whatever remains against the current working
// directory. An empty path normalizes to "".
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	expanded, err := expandHome(os.ExpandEnv(path))
	if err != nil {
		return "", err
	}

	absolute, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return absolute, nil
}

// NormalizeCommand has similar semantics to NormalizeFilePath, except the
// path is only absolutized when it exists on the filesystem — a bare
// command name like "cat Readme.md" is left untouched rather than resolved
// against the working directory.
func NormalizeCommand(commandPath string) (string, error) {
	if commandPath == "" {
		return "", nil
	}

	expanded, err := expandHome(os.ExpandEnv(commandPath))
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(expanded); err == nil {
		absolute, err := filepath.Abs(expanded)
		if err != nil {
			return "", err
		}
		return absolute, nil
	}

	return expanded, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && !strings.HasPrefix(path[1:], "/") {
		return "", errors.New("osutil: cannot expand user-specific home dir")
	}

	home, err := UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}
