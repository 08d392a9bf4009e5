//go:build linux

package platform

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spenremote/pkg/spen"

	"golang.org/x/sys/unix"
)

// Host describes the Linux machine the bridge runs on. Vendor names come from DMI; the
// Bluetooth LE feature is assumed when the kernel exposes a Bluetooth controller.
type Host struct {
	// Root prefixes every sysfs path.
	Root string

	logger *slog.Logger
}

// NewHost creates a Host platform reading the live sysfs.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{Root: "/", logger: logger}
}

func (h *Host) path(p string) string { return filepath.Join(h.Root, p) }

func (h *Host) readDMI(field string) string {
	data, err := os.ReadFile(h.path("sys/class/dmi/id/" + field))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (h *Host) Brand() string        { return h.readDMI("board_vendor") }
func (h *Host) Manufacturer() string { return h.readDMI("sys_vendor") }

// IsPackageInstalled reports whether a directory named after pkg exists under /opt and
// is readable by this process.
func (h *Host) IsPackageInstalled(pkg string) bool {
	return unix.Access(h.path(filepath.Join("opt", pkg)), unix.R_OK) == nil
}

func (h *Host) HasSystemFeature(name string) bool {
	if name != spen.FeatureBluetoothLE {
		return false
	}
	entries, err := os.ReadDir(h.path("sys/class/bluetooth"))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hci") {
			return true
		}
	}
	return false
}

// QueryCapabilities reads a comma-separated feature list from /etc/spenremote/features.
// A missing file yields ErrNoCapabilities.
func (h *Host) QueryCapabilities() (string, error) {
	data, err := os.ReadFile(h.path("etc/spenremote/features"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoCapabilities
	}
	if err != nil {
		h.logger.Debug("capability file unreadable", "error", err)
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
