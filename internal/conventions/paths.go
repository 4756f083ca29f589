package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default aihq data directory name (relative to home).
	DefaultDataDir = ".aihq"
	// DBFile is the SQLite task store filename.
	DBFile = "aihq.db"
	// ReposDir is the subdirectory for the repository workspaces.
	ReposDir = "repos"
)

// DBPath returns the path of the task store database.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// WorkspacesPath returns the directory of the repository workspaces.
func WorkspacesPath(dataDir string) string {
	return filepath.Join(dataDir, ReposDir)
}
