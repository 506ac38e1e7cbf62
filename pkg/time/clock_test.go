package time

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewManualClock(start)

	assert.Equal(t, start.UnixMicro(), Micros(c))

	c.Advance(1500 * time.Microsecond)
	assert.Equal(t, start.UnixMicro()+1500, Micros(c))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSystemClockMicros(t *testing.T) {
	before := time.Now().UnixMicro()
	got := Micros(SystemClock{})
	after := time.Now().UnixMicro()

	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}
