package spen

import "errors"

var (
	// ErrUnsupportedDevice is reported when the device fails a pre-bind eligibility check
	ErrUnsupportedDevice = errors.New("spen: unsupported device")

	// ErrConnectionFailed is reported when the transport produced no usable service handle
	ErrConnectionFailed = errors.New("spen: connection failed")

	// ErrServiceNotConnected is returned by operations that need a bound service
	ErrServiceNotConnected = errors.New("spen: service not connected")

	// ErrDecode is returned when an event record is too short for its unit type
	ErrDecode = errors.New("spen: malformed event record")

	// ErrPermissionDenied is returned by a Transport that refuses to bind for lack of permission
	ErrPermissionDenied = errors.New("spen: permission denied")

	// ErrUnknownUnitType is returned for a unit type outside the known set
	ErrUnknownUnitType = errors.New("spen: unknown unit type")
)
