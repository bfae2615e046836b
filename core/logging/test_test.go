package logging_test

import (
	"github.com/usnistgov/udpcore/core/testenv"
)

var makeAR = testenv.MakeAR
