package trafficlight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
	"golang.org/x/exp/rand"
)

func greedy(t *testing.T) *trafficlight.GreedySelector {
	p := mustProgram(t, "GGrr", "yyrr", "rrGG", "rryy")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	require.NoError(t, err)
	return trafficlight.NewGreedySelector(lg)
}

func TestGreedySelect(t *testing.T) {
	s := greedy(t)
	assert.Len(t, s.Groups(), 4)

	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{5, 0, 2, 0}, 2))
	assert.Equal(t, int32(2), s.Select(trafficlight.DemandSnapshot{1, 0, 8, 0}, 0))
}

func TestGreedyTiePrefersCurrent(t *testing.T) {
	s := greedy(t)
	assert.Equal(t, int32(2), s.Select(trafficlight.DemandSnapshot{4, 0, 4, 0}, 2))
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{4, 0, 4, 0}, 0))
	// 当前相位不在并列集合中时取索引最小者
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{4, 0, 4, 0}, 1))
	assert.Equal(t, int32(3), s.Select(trafficlight.DemandSnapshot{0, 0, 0, 0}, 3))
}

func TestGreedySelectProperties(t *testing.T) {
	s := greedy(t)
	r := rand.New(rand.NewSource(42))
	for range 1000 {
		demand := make(trafficlight.DemandSnapshot, 4)
		for i := range demand {
			demand[i] = int32(r.Intn(5))
		}
		current := int32(r.Intn(4))
		chosen := s.Select(demand, current)
		for _, q := range demand {
			assert.GreaterOrEqual(t, demand[chosen], q)
		}
		if demand[current] == demand[chosen] {
			assert.Equal(t, current, chosen, "demand=%v current=%d", demand, current)
		}
		// 幂等
		assert.Equal(t, chosen, s.Select(demand, current))
	}
}

func axisSelector(t *testing.T) *trafficlight.AxisSelector {
	p := mustProgram(t, "GGrr", "yyrr", "rrGG", "rryy")
	g, err := trafficlight.NewAxisGrouping([]trafficlight.Axis{
		{Name: "NS", Phase: 0, Approaches: []string{"N", "S"}},
		{Name: "EW", Phase: 2, Approaches: []string{"E", "W"}},
	}, p)
	require.NoError(t, err)
	return trafficlight.NewAxisSelector(g)
}

func TestAxisSelect(t *testing.T) {
	s := axisSelector(t)
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{7, 3}, 2))
	assert.Equal(t, int32(2), s.Select(trafficlight.DemandSnapshot{3, 7}, 0))
}

func TestAxisTieBreak(t *testing.T) {
	s := axisSelector(t)
	// 并列时保持当前轴
	assert.Equal(t, int32(2), s.Select(trafficlight.DemandSnapshot{6, 6}, 2))
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{6, 6}, 0))
	// 当前相位（黄灯）不属于任何轴：按声明顺序
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{6, 6}, 1))
	assert.Equal(t, int32(0), s.Select(trafficlight.DemandSnapshot{6, 6}, 3))
}

func TestAxisSelectDeterministic(t *testing.T) {
	s := axisSelector(t)
	for ns := int32(0); ns < 10; ns++ {
		for ew := int32(0); ew < 10; ew++ {
			for _, current := range []int32{0, 1, 2, 3} {
				demand := trafficlight.DemandSnapshot{ns, ew}
				first := s.Select(demand, current)
				assert.Equal(t, first, s.Select(demand, current))
				assert.Contains(t, []int32{0, 2}, first)
			}
		}
	}
}
