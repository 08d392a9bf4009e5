// Package platform answers device eligibility and capability questions for the pen session.
package platform

import (
	"errors"
	"log/slog"
	"strings"

	"spenremote/pkg/spen"
)

// ErrNoCapabilities is returned by a capability query that has nothing to report.
var ErrNoCapabilities = errors.New("platform: capability query unavailable")

// Static is a Platform and CapabilityQuery backed by fixed values. It describes a device
// the bridge reaches over the network rather than the machine it runs on.
type Static struct {
	BrandName        string
	ManufacturerName string
	Packages         []string
	SystemFeatures   []string
	Capabilities     []string
}

var (
	_ spen.Platform        = (*Static)(nil)
	_ spen.CapabilityQuery = (*Static)(nil)
)

func (s *Static) Brand() string        { return s.BrandName }
func (s *Static) Manufacturer() string { return s.ManufacturerName }

func (s *Static) IsPackageInstalled(pkg string) bool {
	return contains(s.Packages, pkg)
}

func (s *Static) HasSystemFeature(name string) bool {
	return contains(s.SystemFeatures, name)
}

// QueryCapabilities returns the configured capabilities joined with commas.
func (s *Static) QueryCapabilities() (string, error) {
	if len(s.Capabilities) == 0 {
		return "", ErrNoCapabilities
	}
	return strings.Join(s.Capabilities, ","), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

// Kind selects a Platform implementation.
type Kind string

const (
	KindStatic  Kind = "static"
	KindAndroid Kind = "android"
	KindHost    Kind = "host"
)

// Device is the platform part of the configuration.
type Device struct {
	Kind           Kind
	Brand          string
	Manufacturer   string
	Packages       []string
	SystemFeatures []string
	Capabilities   []string
	CapabilityProp string
}

// Select builds the Platform and CapabilityQuery described by d. An unknown kind falls
// back to the static description.
func Select(d Device, logger *slog.Logger) (spen.Platform, spen.CapabilityQuery) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "platform")

	switch d.Kind {
	case KindAndroid:
		a := NewAndroid(logger)
		if d.CapabilityProp != "" {
			a.CapabilityProp = d.CapabilityProp
		}
		return a, a
	case KindHost:
		h := NewHost(logger)
		return h, h
	case KindStatic, "":
	default:
		logger.Warn("unknown platform kind, using static description", "kind", d.Kind)
	}

	s := &Static{
		BrandName:        d.Brand,
		ManufacturerName: d.Manufacturer,
		Packages:         d.Packages,
		SystemFeatures:   d.SystemFeatures,
		Capabilities:     d.Capabilities,
	}
	return s, s
}
