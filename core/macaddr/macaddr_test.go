package macaddr_test

import (
	"flag"
	"net"
	"testing"

	"github.com/usnistgov/udpcore/core/macaddr"
)

func TestMacAddr(t *testing.T) {
	assert, _ := makeAR(t)

	macZero, _ := net.ParseMAC("00:00:00:00:00:00")
	uA1, _ := net.ParseMAC("02:00:00:00:00:A1")
	uA2, _ := net.ParseMAC("02:00:00:00:00:A2")
	mA1, _ := net.ParseMAC("03:00:00:00:00:A1")
	mac64, _ := net.ParseMAC("02:00:00:00:00:00:00:64")

	assert.True(macaddr.Equal(uA1, uA1))
	assert.False(macaddr.Equal(uA1, uA2))

	assert.True(macaddr.IsValid(macZero))
	assert.False(macaddr.IsValid(mac64))

	assert.False(macaddr.IsUnicast(macZero))
	assert.True(macaddr.IsUnicast(uA1))
	assert.False(macaddr.IsUnicast(mA1))
	assert.False(macaddr.IsUnicast(mac64))

	assert.True(macaddr.IsBroadcast(macaddr.Broadcast))
	assert.False(macaddr.IsBroadcast(mA1))
}

func TestRegisters(t *testing.T) {
	assert, _ := makeAR(t)

	a, _ := net.ParseMAC("5A:51:52:53:54:55")
	hi, lo := macaddr.ToRegisters(a)
	assert.Equal(uint32(0x00005A51), hi)
	assert.Equal(uint32(0x52535455), lo)
	assert.True(macaddr.Equal(a, macaddr.FromRegisters(hi, lo)))

	hi, lo = macaddr.ToRegisters(net.HardwareAddr{1, 2, 3})
	assert.Zero(hi)
	assert.Zero(lo)
}

func TestFlag(t *testing.T) {
	assert, _ := makeAR(t)

	var f flag.FlagSet
	var m macaddr.Flag
	f.Var(&m, "m", "")

	assert.True(m.Empty())
	assert.Error(f.Parse([]string{"-m", "x"}))
	assert.Error(f.Parse([]string{"-m", "02:00:00:00:00:00:00:64"}))
	assert.NoError(f.Parse([]string{"-m", "02:00:00:00:00:A0"}))
	assert.False(m.Empty())

	text, e := m.MarshalText()
	assert.NoError(e)
	assert.Equal("02:00:00:00:00:a0", string(text))
}
