// Package macaddr provides MAC-48 address helpers.
package macaddr

import (
	"bytes"
	"net"
)

// Equal determines whether two HardwareAddrs are the same.
func Equal(a, b net.HardwareAddr) bool {
	return bytes.Equal([]byte(a), []byte(b))
}

// IsValid determines whether the HardwareAddr is a MAC-48 address.
func IsValid(a net.HardwareAddr) bool {
	return len(a) == 6
}

// IsUnicast determines whether the HardwareAddr is a non-zero unicast MAC-48 address.
func IsUnicast(a net.HardwareAddr) bool {
	return IsValid(a) && (a[0]&0x01) == 0 && (a[0]|a[1]|a[2]|a[3]|a[4]|a[5]) != 0
}

// IsBroadcast determines whether the HardwareAddr is ff:ff:ff:ff:ff:ff.
func IsBroadcast(a net.HardwareAddr) bool {
	return IsValid(a) && (a[0]&a[1]&a[2]&a[3]&a[4]&a[5]) == 0xFF
}

// Broadcast is the Ethernet broadcast address.
var Broadcast = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ToRegisters splits a MAC-48 address into the two 32-bit words understood by the device.
// The high word holds the first two octets in its lower half; the low word holds the last four.
func ToRegisters(a net.HardwareAddr) (hi, lo uint32) {
	if !IsValid(a) {
		return 0, 0
	}
	hi = uint32(a[0])<<8 | uint32(a[1])
	lo = uint32(a[2])<<24 | uint32(a[3])<<16 | uint32(a[4])<<8 | uint32(a[5])
	return
}

// FromRegisters reassembles a MAC-48 address from device register words.
func FromRegisters(hi, lo uint32) net.HardwareAddr {
	return net.HardwareAddr{
		byte(hi >> 8), byte(hi),
		byte(lo >> 24), byte(lo >> 16), byte(lo >> 8), byte(lo),
	}
}
