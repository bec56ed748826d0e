package clock_test

import (
	"context"
	"math"
	"testing"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/minqueue-tls/clock"
)

func TestClock(t *testing.T) {
	c := clock.New(1, 0)
	assert.True(t, math.IsInf(c.END, 1))
	c.Init(0)
	for i := 1; i <= 3725; i++ {
		c.Advance(float64(i))
	}
	assert.False(t, c.Reached())
	assert.Equal(t, int32(3725), c.InternalStep())
	assert.Equal(t, "01:02:05", c.String())

	res, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 3725.0, res.Msg.T)
}

func TestClockReached(t *testing.T) {
	c := clock.New(0.1, 1)
	c.Init(0)
	for i := 1; i < 10; i++ {
		c.Advance(float64(i) * 0.1)
		assert.False(t, c.Reached(), "t=%v", c.T())
	}
	// 浮点步长累积误差不影响判断
	t10 := 0.0
	for range 10 {
		t10 += 0.1
	}
	require.Less(t, t10, 1.0)
	c.Advance(t10)
	assert.True(t, c.Reached())
}
