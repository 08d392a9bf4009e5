package spen

// Bind parameters sent with every bind request.
const (
	ServicePackage  = "com.samsung.android.service.aircommand"
	ProtocolVersion = "1.0"
	BinderType      = 1

	// VendorName must match both the device brand and manufacturer.
	VendorName = "samsung"

	// FeatureBluetoothLE is the system feature the pen's wireless link depends on.
	FeatureBluetoothLE = "android.hardware.bluetooth_le"
)

// BindParams identifies the caller and protocol to the service.
type BindParams struct {
	ProtocolVersion string
	BinderType      int
	PackageName     string
	RequestID       string
}

// Transport binds to and unbinds from the out-of-process service. Bind must not block on
// the outcome: results are delivered later through the ServiceConnection, on any goroutine,
// possibly before Bind returns. A Bind refused for lack of permission returns an error
// wrapping ErrPermissionDenied.
type Transport interface {
	Bind(params BindParams, conn ServiceConnection) error
	Unbind(conn ServiceConnection) error
}

// ServiceConnection receives binding results from a Transport. A nil Service passed to
// OnServiceConnected means the bind completed without a usable handle.
type ServiceConnection interface {
	OnServiceConnected(svc Service)
	OnServiceDisconnected()
}

// Service is a live handle to the bound service.
type Service interface {
	RegisterCallback(t UnitType, cb Callback) error
	UnregisterCallback(t UnitType, cb Callback) error
}

// Callback receives raw records for the unit type it was registered under.
type Callback interface {
	OnEvent(rec EventRecord)
}

// Platform answers device eligibility questions.
type Platform interface {
	Brand() string
	Manufacturer() string
	IsPackageInstalled(pkg string) bool
	HasSystemFeature(name string) bool
}

// CapabilityQuery returns the comma-separated list of features the device supports.
// An error means the query facility is unavailable.
type CapabilityQuery interface {
	QueryCapabilities() (string, error)
}

// CapabilityQueryFunc adapts a function to CapabilityQuery.
type CapabilityQueryFunc func() (string, error)

// QueryCapabilities calls the underlying function.
func (f CapabilityQueryFunc) QueryCapabilities() (string, error) { return f() }
