package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFileName is the server log inside the data directory's logs folder.
const LogFileName = "hybridrag.log"

// LogPath returns dataDir/logs/hybridrag.log.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", LogFileName)
}

// FindLogFile returns explicit if set, otherwise LogPath(dataDir). The file
// must exist.
func FindLogFile(explicit, dataDir string) (string, error) {
	path := explicit
	if path == "" {
		path = LogPath(dataDir)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("log file not found: %s (run a command with --log-file or serve first)", path)
	}
	return path, nil
}
