// Package identity describes the running daemon for log lines and metrics.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultVersion is reported when no build or metadata version is available.
const DefaultVersion = "dev"

// Version is set at build time with -ldflags "-X .../identity.Version=1.2.3".
var Version = ""

// Info identifies one wake cycle of the daemon. A new BootID is minted every
// time the device runs its startup sequence, so log lines from different
// wake cycles can be told apart on the serial console.
type Info struct {
	BootID   string
	Cycle    int
	Hostname string
	Version  string
}

// New returns identity information for wake cycle n.
func New(cycle int, metadataDir string) Info {
	return Info{
		BootID:   uuid.NewString(),
		Cycle:    cycle,
		Hostname: GetHostname(),
		Version:  GetVersion(metadataDir),
	}
}

// LogAttrs returns the identity as slog key/value pairs.
func (i Info) LogAttrs() []any {
	return []any{"boot_id", i.BootID, "cycle", i.Cycle, "host", i.Hostname, "version", i.Version}
}

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "musicbox"
	}
	return h
}

// GetVersion returns the build version, falling back to metadata.json in dir
// (normally the internal storage root) and then DefaultVersion.
func GetVersion(dir string) string {
	if Version != "" {
		return Version
	}
	if dir == "" {
		return DefaultVersion
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return DefaultVersion
	}

	var meta struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version == "" {
		return DefaultVersion
	}
	return meta.Version
}
