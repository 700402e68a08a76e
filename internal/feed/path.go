package feed

import (
	"fmt"
	"os"
	"path/filepath"
)

func DefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "promptbench", "feed.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("promptbench-%d", os.Getuid()), "feed.sock")
}
