package nnduration_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/usnistgov/udpcore/core/nnduration"
	"github.com/usnistgov/udpcore/core/testenv"
)

func TestMilliseconds(t *testing.T) {
	assert, _ := makeAR(t)

	assert.Equal(2816*time.Millisecond, nnduration.Milliseconds(0).DurationOr(2816))

	ms := nnduration.Milliseconds(5274)
	assert.Equal(5274*time.Millisecond, ms.DurationOr(2816))
	assert.Equal(`5274`, toJSON(ms))

	var decoded nnduration.Milliseconds
	testenv.FromJSON(t, `5274`, &decoded)
	assert.Equal(ms, decoded)

	testenv.FromJSON(t, `"5274"`, &decoded)
	assert.Equal(ms, decoded)

	testenv.FromJSON(t, `"6s"`, &decoded)
	assert.Equal(nnduration.Milliseconds(6000), decoded)
	assert.Equal(6*time.Second, decoded.Duration())

	assert.Error(json.Unmarshal([]byte(`"-1s"`), &decoded))
	assert.Error(json.Unmarshal([]byte(`"soon"`), &decoded))
}

func TestMicroseconds(t *testing.T) {
	assert, _ := makeAR(t)

	assert.Equal(1652*time.Microsecond, nnduration.Microseconds(0).DurationOr(1652))

	us := nnduration.Microseconds(7011)
	assert.Equal(7011*time.Microsecond, us.DurationOr(1652))
	assert.Equal(`7011`, toJSON(us))

	var decoded nnduration.Microseconds
	testenv.FromJSON(t, `"3ms"`, &decoded)
	assert.Equal(nnduration.Microseconds(3000), decoded)
	assert.Equal(3*time.Millisecond, decoded.Duration())
}
