package trafficlight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
)

func links(in ...string) []entity.ControlledLink {
	res := make([]entity.ControlledLink, len(in))
	for i, id := range in {
		res[i] = entity.ControlledLink{In: id, Out: id + "_out"}
	}
	return res
}

func mustProgram(t *testing.T, states ...string) *trafficlight.SignalProgram {
	phases := make([]entity.SignalPhase, len(states))
	for i, s := range states {
		phases[i] = entity.SignalPhase{State: s, Duration: 30}
	}
	p, err := trafficlight.NewSignalProgram(phases)
	require.NoError(t, err)
	return p
}

func TestNewSignalProgram(t *testing.T) {
	_, err := trafficlight.NewSignalProgram(nil)
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	_, err = trafficlight.NewSignalProgram([]entity.SignalPhase{{State: "GGrr"}, {State: "rrG"}})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	p := mustProgram(t, "GGrr", "yyrr", "rrGG")
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 4, p.StateLength())
	assert.True(t, p.Valid(2))
	assert.False(t, p.Valid(3))
	assert.False(t, p.Valid(-1))
	ph, ok := p.Phase(1)
	assert.True(t, ok)
	assert.Equal(t, "yyrr", ph.State)
}

func TestBuildLinkGroup(t *testing.T) {
	p := mustProgram(t, "GGrr", "yyrr", "rrGg", "GrGr")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	require.NoError(t, err)

	assert.Len(t, lg, p.Len())
	assert.Equal(t, []string{"A", "B"}, lg[0])
	assert.Empty(t, lg[1])
	assert.Equal(t, []string{"C", "D"}, lg[2])
	assert.Equal(t, []string{"A", "C"}, lg[3])
	assert.Equal(t, []string{"A", "B", "C", "D"}, lg.Approaches())
}

func TestBuildLinkGroupDeduplicatesLanes(t *testing.T) {
	// 同一进口车道有直行和左转两个连接
	p := mustProgram(t, "GGGrr", "rrrGG")
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "A", "B", "C", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, lg[0])
	assert.Equal(t, []string{"C"}, lg[1])
}

func TestBuildLinkGroupIgnoresLengthMismatch(t *testing.T) {
	p := mustProgram(t, "GGrr", "rrGG")

	// 连接表偏短：状态串多出的部分被忽略
	lg, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, lg[0])
	assert.Equal(t, []string{"C"}, lg[1])

	// 连接表偏长：多余的连接被忽略
	lg, err = trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D", "E", "F"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, lg[0])
	assert.Equal(t, []string{"C", "D"}, lg[1])
	assert.NotContains(t, lg.Approaches(), "E")
}

func TestBuildLinkGroupEmptyApproachSet(t *testing.T) {
	p := mustProgram(t, "rrrr", "yyyy")
	_, err := trafficlight.BuildLinkGroup(p, links("A", "B", "C", "D"))
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	p = mustProgram(t, "GGGG")
	_, err = trafficlight.BuildLinkGroup(p, nil)
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestNewAxisGrouping(t *testing.T) {
	p := mustProgram(t, "GGrr", "yyrr", "rrGG", "rryy")
	axes := []trafficlight.Axis{
		{Name: "NS", Phase: 0, Approaches: []string{"N", "S"}},
		{Name: "EW", Phase: 2, Approaches: []string{"E", "W"}},
	}
	g, err := trafficlight.NewAxisGrouping(axes, p)
	require.NoError(t, err)
	assert.Len(t, g.Axes(), 2)
	i, ok := g.AxisOfPhase(2)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = g.AxisOfPhase(1)
	assert.False(t, ok)

	groups := g.Groups()
	assert.Equal(t, "NS", groups[0].Name)
	assert.Equal(t, int32(2), groups[1].Phase)
}

func TestNewAxisGroupingInvalid(t *testing.T) {
	p := mustProgram(t, "GGrr", "rrGG")
	cases := map[string][]trafficlight.Axis{
		"single axis": {
			{Name: "NS", Phase: 0, Approaches: []string{"N"}},
		},
		"phase out of range": {
			{Name: "NS", Phase: 0, Approaches: []string{"N"}},
			{Name: "EW", Phase: 2, Approaches: []string{"E"}},
		},
		"shared approach": {
			{Name: "NS", Phase: 0, Approaches: []string{"N", "X"}},
			{Name: "EW", Phase: 1, Approaches: []string{"E", "X"}},
		},
		"shared phase": {
			{Name: "NS", Phase: 0, Approaches: []string{"N"}},
			{Name: "EW", Phase: 0, Approaches: []string{"E"}},
		},
		"empty axis": {
			{Name: "NS", Phase: 0, Approaches: []string{"N"}},
			{Name: "EW", Phase: 1},
		},
		"duplicated name": {
			{Name: "NS", Phase: 0, Approaches: []string{"N"}},
			{Name: "NS", Phase: 1, Approaches: []string{"E"}},
		},
	}
	for name, axes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := trafficlight.NewAxisGrouping(axes, p)
			assert.ErrorIs(t, err, entity.ErrConfiguration)
		})
	}
}
