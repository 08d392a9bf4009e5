//go:build linux

package platform

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"spenremote/pkg/spen"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHostReadsSysfs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sys/class/dmi/id/board_vendor", "Samsung\n")
	writeFile(t, root, "sys/class/dmi/id/sys_vendor", "SAMSUNG ELECTRONICS\n")
	writeFile(t, root, "etc/spenremote/features", "button\n")
	if err := os.MkdirAll(filepath.Join(root, "sys/class/bluetooth/hci0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "opt", spen.ServicePackage), 0o755); err != nil {
		t.Fatal(err)
	}

	h := NewHost(nil)
	h.Root = root

	if h.Brand() != "Samsung" {
		t.Errorf("Brand = %q", h.Brand())
	}
	if h.Manufacturer() != "SAMSUNG ELECTRONICS" {
		t.Errorf("Manufacturer = %q", h.Manufacturer())
	}
	if !h.HasSystemFeature(spen.FeatureBluetoothLE) {
		t.Error("expected bluetooth_le")
	}
	if h.HasSystemFeature("android.hardware.nfc") {
		t.Error("unexpected nfc")
	}
	if !h.IsPackageInstalled(spen.ServicePackage) {
		t.Error("expected service package")
	}
	caps, err := h.QueryCapabilities()
	if err != nil || caps != "button" {
		t.Errorf("QueryCapabilities = %q, %v", caps, err)
	}
}

func TestHostEmptyRoot(t *testing.T) {
	h := NewHost(nil)
	h.Root = t.TempDir()

	if h.Brand() != "" || h.HasSystemFeature(spen.FeatureBluetoothLE) || h.IsPackageInstalled(spen.ServicePackage) {
		t.Error("empty root should report nothing")
	}
	if _, err := h.QueryCapabilities(); !errors.Is(err, ErrNoCapabilities) {
		t.Errorf("expected ErrNoCapabilities, got %v", err)
	}
}

func TestHostCapabilityFileErrors(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "etc/spenremote/features"), 0o755); err != nil {
		t.Fatal(err)
	}
	h := NewHost(nil)
	h.Root = root

	_, err := h.QueryCapabilities()
	if err == nil || errors.Is(err, ErrNoCapabilities) {
		t.Errorf("unreadable feature file should surface its error, got %v", err)
	}
}

func TestHostPackageMustBeReadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission bits")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "opt", spen.ServicePackage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	h := NewHost(nil)
	h.Root = root
	if h.IsPackageInstalled(spen.ServicePackage) {
		t.Error("unreadable package directory reported as installed")
	}
}
