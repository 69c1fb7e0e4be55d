// Package hwid derives the stable hardware fingerprint agents enroll
// under. The value is opaque to the server; all that matters is that the
// same machine keeps producing the same string.
package hwid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	gohost "github.com/shirou/gopsutil/v4/host"
)

// For testing
var hostInfo = gohost.InfoWithContext

// Derive fingerprints this machine: SHA-256 over a composite of the OS
// machine id, hostname, platform, and architecture. Falls back to the bare
// hostname when the OS exposes no machine id.
func Derive(ctx context.Context) (string, error) {
	composite, err := composite(ctx)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:]), nil
}

func composite(ctx context.Context) (string, error) {
	info, err := hostInfo(ctx)
	if err != nil || info == nil {
		// Containers and stripped-down systems sometimes refuse host
		// info; the hostname still identifies the machine well enough.
		name, herr := os.Hostname()
		if herr != nil || strings.TrimSpace(name) == "" {
			return "", fmt.Errorf("no host identity available: %w", err)
		}
		return strings.TrimSpace(name), nil
	}

	parts := []string{
		strings.TrimSpace(info.HostID),
		strings.TrimSpace(info.Hostname),
		info.Platform,
		info.KernelArch,
	}
	joined := strings.Join(parts, "|")
	if strings.Trim(joined, "|") == "" {
		return "", fmt.Errorf("host info carries no identifying fields")
	}
	return joined, nil
}
