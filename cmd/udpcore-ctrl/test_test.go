package main

import (
	"github.com/usnistgov/udpcore/core/testenv"
)

var makeAR = testenv.MakeAR
