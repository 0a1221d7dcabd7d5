package common

// File permission constants, shared so every writer uses the same modes
const (
	// FilePermissionSecure is for files holding user-private data
	FilePermissionSecure = 0o600

	// FilePermissionNormal is for generated project files
	FilePermissionNormal = 0o644

	// DirPermissionSecure is for directories holding user-private data
	DirPermissionSecure = 0o700

	// DirPermissionNormal is for generated project directories
	DirPermissionNormal = 0o755
)
