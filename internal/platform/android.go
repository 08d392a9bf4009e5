package platform

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const commandTimeout = 5 * time.Second

// DefaultCapabilityProp is the system property holding the pen feature list.
const DefaultCapabilityProp = "ro.spen.remote.features"

// runFunc runs a command and returns its standard output.
type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// Android answers eligibility questions on the device itself through getprop and pm.
type Android struct {
	CapabilityProp string

	logger *slog.Logger
	run    runFunc

	featuresOnce sync.Once
	features     map[string]bool
}

// NewAndroid creates an Android platform using the device's shell tools.
func NewAndroid(logger *slog.Logger) *Android {
	if logger == nil {
		logger = slog.Default()
	}
	return &Android{
		CapabilityProp: DefaultCapabilityProp,
		logger:         logger,
		run:            execRun,
	}
}

func (a *Android) command(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := a.run(ctx, name, args...)
	if err != nil {
		a.logger.Debug("command failed", "cmd", name, "args", args, "error", err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *Android) prop(name string) string {
	v, _ := a.command("getprop", name)
	return v
}

func (a *Android) Brand() string        { return a.prop("ro.product.brand") }
func (a *Android) Manufacturer() string { return a.prop("ro.product.manufacturer") }

// IsPackageInstalled asks the package manager for the package's install path.
func (a *Android) IsPackageInstalled(pkg string) bool {
	out, err := a.command("pm", "path", pkg)
	return err == nil && strings.HasPrefix(out, "package:")
}

// HasSystemFeature consults the feature list reported by the package manager. The list
// is read once.
func (a *Android) HasSystemFeature(name string) bool {
	a.featuresOnce.Do(func() {
		a.features = make(map[string]bool)
		out, err := a.command("pm", "list", "features")
		if err != nil {
			a.logger.Warn("feature list unavailable", "error", err)
			return
		}
		for _, line := range strings.Split(out, "\n") {
			f := strings.TrimPrefix(strings.TrimSpace(line), "feature:")
			if i := strings.IndexByte(f, '='); i >= 0 {
				f = f[:i]
			}
			if f != "" {
				a.features[f] = true
			}
		}
	})
	return a.features[name]
}

// QueryCapabilities reads the pen feature property.
func (a *Android) QueryCapabilities() (string, error) {
	out, err := a.command("getprop", a.CapabilityProp)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrNoCapabilities
	}
	return out, nil
}
