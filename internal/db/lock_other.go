//go:build !unix && !windows

package db

import "os"

// No advisory locks here; a single owner is assumed.
func lockFile(*os.File) error {
	return nil
}
