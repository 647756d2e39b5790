// Package perms holds the file and directory modes healthd creates things with.
package perms

import "os"

const (
	// RegularFile is used for configuration skeletons, logs and generated docs.
	RegularFile os.FileMode = 0o644

	// SecureFile is used for history databases, which may record connection errors and endpoints.
	SecureFile os.FileMode = 0o600

	// RegularDir is used for data, log and docs directories.
	RegularDir os.FileMode = 0o755
)
