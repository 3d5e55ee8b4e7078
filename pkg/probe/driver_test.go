package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin-protocol/sendspin-go/pkg/clock"
)

func TestFireSendsCurrentT0AndTracksPending(t *testing.T) {
	f := clock.New()
	var sent int64
	d := New(f, func(t0 int64) error { sent = t0; return nil })
	d.nowLocalUS = func() int64 { return 42 }

	d.fire()

	assert.Equal(t, int64(42), sent)
	assert.Equal(t, 1, d.PendingCount())
}

func TestHandleResponseAppliesMeasurementAndClearsPending(t *testing.T) {
	f := clock.New()
	d := New(f, func(int64) error { return nil })
	d.nowLocalUS = func() int64 { return 200 }

	d.fire() // t0 = 200
	require.Equal(t, 1, d.PendingCount())

	d.HandleResponse(200, 10100, 10150)

	assert.Equal(t, 0, d.PendingCount())
	assert.EqualValues(t, 1, f.MeasurementCount())
}

func TestHandleResponseIgnoresUnknownT0(t *testing.T) {
	f := clock.New()
	d := New(f, func(int64) error { return nil })

	d.HandleResponse(999, 1, 2)

	assert.EqualValues(t, 0, f.MeasurementCount())
}

func TestHandleResponseDiscardsStaleProbe(t *testing.T) {
	f := clock.New()
	d := New(f, func(int64) error { return nil })
	d.nowLocalUS = func() int64 { return 0 }

	d.fire()
	d.mu.Lock()
	d.pending[0] = time.Now().Add(-Timeout - time.Second)
	d.mu.Unlock()

	d.HandleResponse(0, 1, 2)

	assert.EqualValues(t, 0, f.MeasurementCount())
}
