//go:build !linux

package platform

import "log/slog"

// Host is not implemented outside Linux; every query reports an ineligible device.
type Host struct {
	logger *slog.Logger
}

func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("host platform not supported on this OS")
	return &Host{logger: logger}
}

func (h *Host) Brand() string                      { return "" }
func (h *Host) Manufacturer() string               { return "" }
func (h *Host) IsPackageInstalled(string) bool     { return false }
func (h *Host) HasSystemFeature(string) bool       { return false }
func (h *Host) QueryCapabilities() (string, error) { return "", ErrNoCapabilities }
