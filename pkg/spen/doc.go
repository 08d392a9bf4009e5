// Package spen bridges S Pen button and air-motion events from the vendor pen service to
// application listeners.
//
// A Session validates the device and binds to the service through a Transport. Once the
// service handle arrives, the Session hands a UnitManager to the ConnectResultCallback.
// The manager keeps one Unit per UnitType; each Unit registers a single adapter callback
// with the service and forwards decoded events to whichever EventListener it currently
// holds.
package spen
