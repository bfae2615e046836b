package record_test

import (
	"encoding/binary"
	"testing"

	"github.com/usnistgov/udpcore/core/testenv"
	"github.com/usnistgov/udpcore/hw/record"
	"inet.af/netaddr"
)

func TestLayout(t *testing.T) {
	assert, require := makeAR(t)

	rec := record.Record{
		SrcIP:   netaddr.MustParseIP("192.168.1.2"),
		SrcPort: 7000,
		DstIP:   netaddr.MustParseIP("192.168.1.128"),
		DstPort: 7400,
		Payload: []byte("0123456789"),
	}
	slot := make([]byte, 256)
	require.NoError(rec.Encode(slot))

	assert.Equal(uint64(10), binary.LittleEndian.Uint64(slot[0:]))
	assert.Equal(uint64(0xC0A80102), binary.LittleEndian.Uint64(slot[8:]))
	assert.Equal(uint64(7000), binary.LittleEndian.Uint64(slot[16:]))
	assert.Equal(uint64(0xC0A80180), binary.LittleEndian.Uint64(slot[24:]))
	assert.Equal(uint64(7400), binary.LittleEndian.Uint64(slot[32:]))
	assert.Equal("0123456789", string(slot[40:50]))

	decoded, e := record.Decode(slot)
	require.NoError(e)
	assert.Equal(rec, decoded)
	assert.Equal("192.168.1.2:7000 -> 192.168.1.128:7400 len=10", decoded.String())
}

func TestTruncated(t *testing.T) {
	assert, _ := makeAR(t)

	rec := record.Record{Payload: testenv.Payload(2048)}
	slot := make([]byte, 256)
	assert.ErrorIs(rec.Encode(slot), record.ErrTruncated)
	assert.Equal(make([]byte, 256), slot)

	hdr, _ := record.Header{PayloadSize: 2048}.MarshalBinary()
	copy(slot, hdr)
	copy(slot[record.HeaderLen:], testenv.Payload(256-record.HeaderLen))
	decoded, e := record.Decode(slot)
	assert.ErrorIs(e, record.ErrTruncated)
	assert.Len(decoded.Payload, 256-record.HeaderLen)
}

func TestMalformed(t *testing.T) {
	assert, _ := makeAR(t)

	_, e := record.Decode(make([]byte, 20))
	assert.ErrorIs(e, record.ErrMalformed)

	hdr, _ := record.Header{SrcPort: 70000}.MarshalBinary()
	_, e = record.Decode(hdr)
	assert.ErrorIs(e, record.ErrMalformed)
}

func TestIPConversion(t *testing.T) {
	assert, _ := makeAR(t)

	assert.Equal(uint32(0xC0A80102), record.IPToUint32(netaddr.MustParseIP("192.168.1.2")))
	assert.Equal(uint32(0), record.IPToUint32(netaddr.MustParseIP("::1")))
	assert.Equal(netaddr.MustParseIP("10.0.0.1"), record.IPFromUint32(0x0A000001))
}
