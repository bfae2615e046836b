package macaddr

import (
	"encoding"
	"errors"
	"flag"
	"net"
)

// Flag is a wrapper of net.HardwareAddr compatible with flag and json packages.
// It only accepts MAC-48 addresses.
type Flag struct {
	net.HardwareAddr
}

var (
	_ interface {
		flag.Getter
		encoding.TextMarshaler
		encoding.TextUnmarshaler
	} = &Flag{}
	_ encoding.TextMarshaler = Flag{}
)

// Empty returns true if the HardwareAddr is unset.
func (f Flag) Empty() bool {
	return len(f.HardwareAddr) == 0
}

// Get implements flag.Getter.
func (f *Flag) Get() any {
	return f.HardwareAddr
}

// Set implements flag.Value.
func (f *Flag) Set(s string) error {
	a, e := net.ParseMAC(s)
	if e != nil {
		return e
	}
	if !IsValid(a) {
		return errors.New("not a MAC-48 address")
	}
	f.HardwareAddr = a
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (f Flag) MarshalText() (text []byte, e error) {
	return []byte(f.HardwareAddr.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flag) UnmarshalText(text []byte) error {
	return f.Set(string(text))
}
