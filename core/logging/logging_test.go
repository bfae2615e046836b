package logging_test

import (
	"testing"

	"github.com/usnistgov/udpcore/core/logging"
)

func TestLevels(t *testing.T) {
	assert, _ := makeAR(t)

	t.Setenv("UDPCORE_LOG_LoggingTestA", "D")
	t.Setenv("UDPCORE_LOG", "W")

	a := logging.GetLevel("LoggingTestA")
	assert.Equal(byte('D'), a.Level())
	b := logging.GetLevel("LoggingTestB")
	assert.Equal(byte('W'), b.Level())
	assert.Same(a, logging.GetLevel("LoggingTestA"))

	b.SetLevel("x")
	assert.Equal(byte('I'), b.Level())
	b.SetLevel("Error")
	assert.Equal(byte('E'), b.Level())

	found := 0
	for _, pl := range logging.ListLevels() {
		switch pl.Package() {
		case "LoggingTestA", "LoggingTestB":
			found++
		}
	}
	assert.Equal(2, found)
}

func TestReg(t *testing.T) {
	assert, _ := makeAR(t)
	f := logging.Reg("reg", 0xA8, 0x4008)
	assert.Equal("00A8=00004008", f.String)
}
