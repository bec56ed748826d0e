package trafficlight_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
)

// twoPhase 相位0放行A、B，相位1放行C、D；控制器在lastSwitch时刻切换到相位0
func twoPhase(t *testing.T, minGreen, lastSwitch float64) *trafficlight.MinQueueTrafficLight {
	p := mustProgram(t, "GGrr", "rrGG")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	require.NoError(t, err)
	tl := trafficlight.NewMinQueueTrafficLight(p, trafficlight.NewGreedySelector(lg), minGreen, 0)
	require.NoError(t, tl.Init(1))
	demand := trafficlight.DemandSnapshot{3, 0}
	d, err := tl.Update(lastSwitch, demand, 1)
	require.NoError(t, err)
	require.True(t, d.Switch)
	tl.Commit(lastSwitch, d, demand)
	require.Equal(t, int32(0), tl.Phase())
	return tl
}

func TestMinQueueInit(t *testing.T) {
	p := mustProgram(t, "GGrr", "rrGG")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	require.NoError(t, err)
	tl := trafficlight.NewMinQueueTrafficLight(p, trafficlight.NewGreedySelector(lg), 8, 0)

	err = tl.Init(2)
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	require.NoError(t, tl.Init(1))
	assert.Equal(t, int32(1), tl.Phase())
	assert.True(t, math.IsInf(tl.SinceSwitch(0), 1))
	assert.Equal(t, trafficlight.Eligible, tl.State(0))
	assert.Equal(t, 0.0, tl.RemainingHold(0))
	_, ok := tl.LastSwitch()
	assert.False(t, ok)
}

func TestMinQueueKeepsPhaseWithHigherDemand(t *testing.T) {
	tl := twoPhase(t, 8, 100)
	// A=5,B=0,C=1,D=1
	demand := trafficlight.DemandSnapshot{5, 2}
	d, err := tl.Update(110, demand, 0)
	require.NoError(t, err)
	assert.Equal(t, trafficlight.Eligible, d.State)
	assert.True(t, d.Evaluated)
	assert.False(t, d.Switch)
	assert.Equal(t, int32(0), d.To)
	tl.Commit(110, d, demand)
	assert.Equal(t, int32(0), tl.Phase())
	last, _ := tl.LastSwitch()
	assert.Equal(t, 100.0, last)
}

func TestMinQueueSwitchesWhenEligible(t *testing.T) {
	tl := twoPhase(t, 8, 100)
	// A=0,B=0,C=4,D=4
	demand := trafficlight.DemandSnapshot{0, 8}
	d, err := tl.Update(110, demand, 0)
	require.NoError(t, err)
	assert.True(t, d.Switch)
	assert.Equal(t, int32(0), d.From)
	assert.Equal(t, int32(1), d.To)
	tl.Commit(110, d, demand)

	assert.Equal(t, int32(1), tl.Phase())
	last, ok := tl.LastSwitch()
	assert.True(t, ok)
	assert.Equal(t, 110.0, last)
	assert.Equal(t, trafficlight.Holding, tl.State(110))
	assert.Equal(t, 8.0, tl.RemainingHold(110))

	history := tl.History()
	require.Len(t, history, 2)
	assert.Equal(t, trafficlight.SwitchRecord{T: 110, From: 0, To: 1, Demand: demand}, history[1])
}

func TestMinQueueHoldsDuringMinGreen(t *testing.T) {
	tl := twoPhase(t, 8, 100)
	d, err := tl.Update(103, trafficlight.DemandSnapshot{0, 8}, 0)
	require.NoError(t, err)
	assert.Equal(t, trafficlight.Holding, d.State)
	assert.False(t, d.Evaluated)
	assert.False(t, d.Switch)
	assert.Equal(t, int32(0), tl.Phase())
	assert.InDelta(t, 5.0, tl.RemainingHold(103), 1e-9)
}

func TestMinQueueMinimumGap(t *testing.T) {
	const minGreen = 8.0
	tl := twoPhase(t, minGreen, 0)
	// 需求每步翻转，迫使控制器尽可能频繁切换
	for step := 1; step <= 200; step++ {
		now := float64(step)
		demand := trafficlight.DemandSnapshot{int32(step % 2 * 10), int32((step + 1) % 2 * 10)}
		d, err := tl.Update(now, demand, tl.Phase())
		require.NoError(t, err)
		tl.Commit(now, d, demand)
	}
	history := tl.History()
	require.Greater(t, len(history), 2)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i].T-history[i-1].T, minGreen)
		assert.NotEqual(t, history[i].From, history[i].To)
	}
}

func TestMinQueueSameChoiceKeepsTimer(t *testing.T) {
	tl := twoPhase(t, 8, 100)
	for _, now := range []float64{108, 109, 120} {
		d, err := tl.Update(now, trafficlight.DemandSnapshot{5, 1}, 0)
		require.NoError(t, err)
		assert.False(t, d.Switch)
		tl.Commit(now, d, nil)
	}
	last, _ := tl.LastSwitch()
	assert.Equal(t, 100.0, last)
	assert.Equal(t, trafficlight.Eligible, tl.State(120))
}

func TestMinQueueDecisionInterval(t *testing.T) {
	p := mustProgram(t, "GGrr", "rrGG")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	require.NoError(t, err)
	tl := trafficlight.NewMinQueueTrafficLight(p, trafficlight.NewGreedySelector(lg), 8, 5)
	require.NoError(t, tl.Init(0))

	d, err := tl.Update(1, trafficlight.DemandSnapshot{5, 0}, 0)
	require.NoError(t, err)
	assert.True(t, d.Evaluated)

	d, err = tl.Update(3, trafficlight.DemandSnapshot{0, 5}, 0)
	require.NoError(t, err)
	assert.False(t, d.Evaluated)
	assert.False(t, d.Switch)
	assert.Equal(t, trafficlight.Eligible, d.State)

	d, err = tl.Update(6, trafficlight.DemandSnapshot{0, 5}, 0)
	require.NoError(t, err)
	assert.True(t, d.Evaluated)
	assert.True(t, d.Switch)
}

func TestMinQueueAdoptsObservedPhase(t *testing.T) {
	tl := twoPhase(t, 8, 100)
	d, err := tl.Update(101, trafficlight.DemandSnapshot{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), d.From)
	assert.Equal(t, int32(1), tl.Phase())
	// 越界的观测相位被忽略
	_, err = tl.Update(102, trafficlight.DemandSnapshot{0, 0}, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tl.Phase())
}

type fixedSelector struct {
	phase int32
}

func (s fixedSelector) Groups() []trafficlight.DemandGroup {
	return []trafficlight.DemandGroup{{Name: "all", Phase: 0, Approaches: []string{"A"}}}
}

func (s fixedSelector) Select(trafficlight.DemandSnapshot, int32) int32 {
	return s.phase
}

func TestMinQueueInvalidCommand(t *testing.T) {
	p := mustProgram(t, "GGrr", "rrGG")
	tl := trafficlight.NewMinQueueTrafficLight(p, fixedSelector{phase: 5}, 8, 0)
	require.NoError(t, tl.Init(0))
	d, err := tl.Update(0, trafficlight.DemandSnapshot{1}, 0)
	assert.ErrorIs(t, err, entity.ErrInvalidCommand)
	assert.False(t, d.Switch)
	assert.Empty(t, tl.History())
}

func TestMinQueueAxisTieKeepsCurrentAxis(t *testing.T) {
	p := mustProgram(t, "GGrr", "yyrr", "rrGG", "rryy")
	g, err := trafficlight.NewAxisGrouping([]trafficlight.Axis{
		{Name: "NS", Phase: 0, Approaches: []string{"N", "S"}},
		{Name: "EW", Phase: 2, Approaches: []string{"E", "W"}},
	}, p)
	require.NoError(t, err)
	tl := trafficlight.NewMinQueueTrafficLight(p, trafficlight.NewAxisSelector(g), 8, 0)
	require.NoError(t, tl.Init(2))
	d, err := tl.Update(50, trafficlight.DemandSnapshot{6, 6}, 2)
	require.NoError(t, err)
	assert.True(t, d.Evaluated)
	assert.False(t, d.Switch)
	assert.Equal(t, int32(2), d.To)
}
