package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"spenremote/pkg/spen"
)

func TestStatic(t *testing.T) {
	s := &Static{
		BrandName:        "samsung",
		ManufacturerName: "samsung",
		Packages:         []string{spen.ServicePackage},
		SystemFeatures:   []string{" " + spen.FeatureBluetoothLE},
		Capabilities:     []string{"button", "air_motion"},
	}

	if !s.IsPackageInstalled(spen.ServicePackage) {
		t.Error("package should be installed")
	}
	if s.IsPackageInstalled("com.example.other") {
		t.Error("unexpected package")
	}
	if !s.HasSystemFeature(spen.FeatureBluetoothLE) {
		t.Error("feature should be present")
	}
	caps, err := s.QueryCapabilities()
	if err != nil || caps != "button,air_motion" {
		t.Errorf("QueryCapabilities = %q, %v", caps, err)
	}

	empty := &Static{}
	if _, err := empty.QueryCapabilities(); !errors.Is(err, ErrNoCapabilities) {
		t.Errorf("expected ErrNoCapabilities, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{"", "*platform.Static"},
		{KindStatic, "*platform.Static"},
		{"bogus", "*platform.Static"},
		{KindAndroid, "*platform.Android"},
		{KindHost, "*platform.Host"},
	}
	for _, tt := range tests {
		p, q := Select(Device{Kind: tt.kind}, nil)
		if p == nil || q == nil {
			t.Fatalf("Select(%q) returned nil", tt.kind)
		}
		switch p.(type) {
		case *Static:
			if tt.want != "*platform.Static" {
				t.Errorf("Select(%q) = Static, want %s", tt.kind, tt.want)
			}
		case *Android:
			if tt.want != "*platform.Android" {
				t.Errorf("Select(%q) = Android, want %s", tt.kind, tt.want)
			}
		case *Host:
			if tt.want != "*platform.Host" {
				t.Errorf("Select(%q) = Host, want %s", tt.kind, tt.want)
			}
		}
	}
}

func fakeShell(outputs map[string]string) runFunc {
	return func(_ context.Context, name string, args ...string) (string, error) {
		key := strings.Join(append([]string{name}, args...), " ")
		out, ok := outputs[key]
		if !ok {
			return "", errors.New("exit status 1")
		}
		return out, nil
	}
}

func TestAndroid(t *testing.T) {
	a := NewAndroid(nil)
	calls := 0
	shell := fakeShell(map[string]string{
		"getprop ro.product.brand":         "samsung\n",
		"getprop ro.product.manufacturer":  "samsung\n",
		"pm path " + spen.ServicePackage:   "package:/system/priv-app/AirCommand/AirCommand.apk\n",
		"pm list features":                 "feature:reqGlEsVersion=0x30002\nfeature:android.hardware.bluetooth\nfeature:android.hardware.bluetooth_le\n",
		"getprop " + DefaultCapabilityProp: "button,air_motion\n",
	})
	a.run = func(ctx context.Context, name string, args ...string) (string, error) {
		calls++
		return shell(ctx, name, args...)
	}

	if a.Brand() != "samsung" || a.Manufacturer() != "samsung" {
		t.Errorf("Brand/Manufacturer = %q/%q", a.Brand(), a.Manufacturer())
	}
	if !a.IsPackageInstalled(spen.ServicePackage) {
		t.Error("service package should be installed")
	}
	if a.IsPackageInstalled("com.example.missing") {
		t.Error("missing package reported installed")
	}

	before := calls
	if !a.HasSystemFeature(spen.FeatureBluetoothLE) {
		t.Error("bluetooth_le should be present")
	}
	if a.HasSystemFeature("android.hardware.nfc") {
		t.Error("nfc should be absent")
	}
	if !a.HasSystemFeature("reqGlEsVersion") {
		t.Error("valued feature should be parsed by name")
	}
	if calls-before != 1 {
		t.Errorf("feature list read %d times, want 1", calls-before)
	}

	caps, err := a.QueryCapabilities()
	if err != nil || caps != "button,air_motion" {
		t.Errorf("QueryCapabilities = %q, %v", caps, err)
	}
}

func TestAndroidMissingCapabilityProp(t *testing.T) {
	a := NewAndroid(nil)
	a.run = fakeShell(map[string]string{"getprop " + DefaultCapabilityProp: "\n"})
	if _, err := a.QueryCapabilities(); !errors.Is(err, ErrNoCapabilities) {
		t.Errorf("expected ErrNoCapabilities, got %v", err)
	}

	a.CapabilityProp = "ro.other"
	if _, err := a.QueryCapabilities(); err == nil {
		t.Error("expected error from failing getprop")
	}
}
