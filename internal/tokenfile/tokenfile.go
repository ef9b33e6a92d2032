// Package tokenfile handles reading and writing per-user token files
// under the Data Lab home directory (~/.datalab/id_token.<user>). Each
// file holds one raw token string. This is a leaf package imported by
// both auth/ and the CLI, and the only local-disk mutation in the client
// core besides the config file.
package tokenfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the .datalab directory.
const DirPerms = 0o700

// Path returns the token file path for username inside dir.
func Path(dir, username string) string {
	return filepath.Join(dir, "id_token."+username)
}

// Load reads the saved token for username. Returns ("", nil) if no token
// file exists.
func Load(dir, username string) (string, error) {
	data, err := os.ReadFile(Path(dir, username))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("tokenfile: reading token for %s: %w", username, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Save writes the token for username atomically (write-to-temp + rename)
// with 0600 permissions, creating dir if needed. Never logs token values.
func Save(dir, username, token string) error {
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".id_token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, Path(dir, username)); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file for username. Removing a file that does
// not exist is not an error.
func Remove(dir, username string) error {
	err := os.Remove(Path(dir, username))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing token for %s: %w", username, err)
	}

	return nil
}
