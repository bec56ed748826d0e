package queuesim_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/sim/queuesim"
)

// 两个进口车道，初始排队分别为6和4，无新到达
const crossScenario = `
end: 20
lane_defaults:
  saturation_flow: 1
junctions:
  - id: J
    program:
      - state: Gr
        duration: 30
      - state: rG
        duration: 30
    links:
      - in: A_0
        out: X_0
        via: ":J_0_0"
      - in: B_0
        out: Y_0
        via: ":J_1_0"
lanes:
  - id: A_0
    initial_queue: 6
  - id: B_0
    initial_queue: 4
`

const poissonScenario = `
seed: 7
end: 300
demand_end: 200
lane_defaults:
  arrival_rate: 0.2
  vtypes:
    passenger: 3
    bus: 1
junctions:
  - id: J
    program:
      - state: GGrr
      - state: rrGG
    links:
      - in: N_0
      - in: N_1
      - in: E_0
      - in: E_1
`

func writeScenario(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func start(t *testing.T, content string, args ...string) (*queuesim.Simulation, string) {
	out := filepath.Join(t.TempDir(), "out")
	s := queuesim.New("")
	require.NoError(t, s.Start(context.Background(), entity.Scenario{
		ConfigPath: writeScenario(t, content),
		OutputDir:  out,
		StepLength: 1,
		ExtraArgs:  args,
	}))
	return s, out
}

func halting(t *testing.T, s *queuesim.Simulation, kind entity.ApproachKind, id string) int32 {
	n, err := s.HaltingNumber(context.Background(), kind, id)
	require.NoError(t, err)
	return n
}

func TestSimulationTopology(t *testing.T) {
	ctx := context.Background()
	s, _ := start(t, crossScenario)

	phases, err := s.Program(ctx, "J")
	require.NoError(t, err)
	assert.Equal(t, []entity.SignalPhase{{State: "Gr", Duration: 30}, {State: "rG", Duration: 30}}, phases)

	links, err := s.ControlledLinks(ctx, "J")
	require.NoError(t, err)
	assert.Equal(t, []entity.ControlledLink{
		{In: "A_0", Out: "X_0", Via: ":J_0_0"},
		{In: "B_0", Out: "Y_0", Via: ":J_1_0"},
	}, links)

	_, err = s.Program(ctx, "K")
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	_, err = s.Phase(ctx, "K")
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestSimulationQueueDischarge(t *testing.T) {
	ctx := context.Background()
	s, _ := start(t, crossScenario)

	assert.Equal(t, int32(6), halting(t, s, entity.ApproachLane, "A_0"))
	assert.Equal(t, int32(4), halting(t, s, entity.ApproachLane, "B_0"))
	expected, err := s.MinExpectedNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(10), expected)

	// 相位0放行A，每秒一辆
	for range 3 {
		require.NoError(t, s.Step(ctx))
	}
	assert.Equal(t, int32(3), halting(t, s, entity.ApproachLane, "A_0"))
	assert.Equal(t, int32(4), halting(t, s, entity.ApproachLane, "B_0"))
	now, err := s.Time(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, now, 1e-9)

	require.NoError(t, s.SetPhase(ctx, "J", 1))
	phase, err := s.Phase(ctx, "J")
	require.NoError(t, err)
	assert.Equal(t, int32(1), phase)
	for range 2 {
		require.NoError(t, s.Step(ctx))
	}
	assert.Equal(t, int32(3), halting(t, s, entity.ApproachLane, "A_0"))
	assert.Equal(t, int32(2), halting(t, s, entity.ApproachLane, "B_0"))
	assert.Equal(t, int32(3), halting(t, s, entity.ApproachEdge, "A"))

	expected, err = s.MinExpectedNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(5), expected)
}

func TestSimulationErrors(t *testing.T) {
	ctx := context.Background()

	idle := queuesim.New("")
	_, err := idle.Time(ctx)
	assert.ErrorIs(t, err, entity.ErrSimulationConnectivity)
	assert.NoError(t, idle.Close())

	s, _ := start(t, crossScenario)
	_, err = s.HaltingNumber(ctx, entity.ApproachLane, "Z_0")
	assert.ErrorIs(t, err, entity.ErrTransientRead)
	_, err = s.HaltingNumber(ctx, entity.ApproachEdge, "Z")
	assert.ErrorIs(t, err, entity.ErrTransientRead)
	assert.ErrorIs(t, s.SetPhase(ctx, "J", 2), entity.ErrInvalidCommand)
	assert.ErrorIs(t, s.SetPhase(ctx, "J", -1), entity.ErrInvalidCommand)
	assert.ErrorIs(t, s.Start(ctx, entity.Scenario{}), entity.ErrConfiguration)

	err = queuesim.New("").Start(ctx, entity.Scenario{ConfigPath: writeScenario(t, "end: 0\n"), StepLength: 1})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	err = queuesim.New("").Start(ctx, entity.Scenario{ConfigPath: writeScenario(t, crossScenario), StepLength: 0})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
	err = queuesim.New("").Start(ctx, entity.Scenario{
		ConfigPath: writeScenario(t, crossScenario),
		StepLength: 1,
		ExtraArgs:  []string{"-warp", "9"},
	})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestSimulationEndAndRecords(t *testing.T) {
	ctx := context.Background()
	s, out := start(t, crossScenario, "-end", "8")

	steps := 0
	for {
		err := s.Step(ctx)
		if err != nil {
			assert.ErrorIs(t, err, entity.ErrSimulationEnded)
			break
		}
		steps++
		require.Less(t, steps, 100)
	}
	assert.Equal(t, 8, steps)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Time(ctx)
	assert.ErrorIs(t, err, entity.ErrSimulationConnectivity)

	edges, err := queuesim.ReadRecords(filepath.Join(out, queuesim.EdgeDataFile))
	require.NoError(t, err)
	assert.InDelta(t, 8.0, edges.End, 1e-9)
	require.Len(t, edges.Edges, 2)
	assert.Equal(t, "A", edges.Edges[0].ID)
	assert.Equal(t, 6, edges.Edges[0].Entered)
	assert.Equal(t, 6, edges.Edges[0].Left)
	assert.Equal(t, "B", edges.Edges[1].ID)
	assert.Equal(t, 0, edges.Edges[1].Left)
	assert.InDelta(t, 32.0, edges.Edges[1].WaitingTime, 1e-9)

	trips, err := queuesim.ReadRecords(filepath.Join(out, queuesim.TripInfoFile))
	require.NoError(t, err)
	require.Len(t, trips.Trips, 6)
	for i, trip := range trips.Trips {
		assert.Equal(t, "A_0", trip.Lane)
		assert.InDelta(t, float64(i+1), trip.WaitingTime, 1e-9)
	}
}

func TestSimulationPoissonDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func() []int32 {
		s, _ := start(t, poissonScenario)
		defer s.Close()
		res := make([]int32, 0)
		for i := 0; ; i++ {
			if err := s.Step(ctx); err != nil {
				require.ErrorIs(t, err, entity.ErrSimulationEnded)
				break
			}
			if i%20 == 0 {
				require.NoError(t, s.SetPhase(ctx, "J", int32(i/20%2)))
			}
			res = append(res, halting(t, s, entity.ApproachEdge, "N")+halting(t, s, entity.ApproachEdge, "E"))
		}
		return res
	}
	a, b := run(), run()
	assert.Len(t, a, 300)
	assert.Equal(t, a, b)

	s, _ := start(t, poissonScenario, "-seed", "8")
	defer s.Close()
	expected, err := s.MinExpectedNumber(ctx)
	require.NoError(t, err)
	// 四条车道各约40辆
	assert.Greater(t, expected, int32(80))
	assert.Less(t, expected, int32(260))
}

const fixedTimeScenario = `
end: 100
junctions:
  - id: F
    fixed_time: true
    program:
      - state: Gr
        duration: 3
      - state: yr
        duration: 0
      - state: rG
        duration: 2
    links:
      - in: A_0
      - in: B_0
`

func TestSimulationFixedTime(t *testing.T) {
	ctx := context.Background()
	s, _ := start(t, fixedTimeScenario)
	phases := make([]int32, 0)
	for range 8 {
		require.NoError(t, s.Step(ctx))
		phase, err := s.Phase(ctx, "F")
		require.NoError(t, err)
		phases = append(phases, phase)
	}
	// 时长为0的相位被跳过
	assert.Equal(t, []int32{0, 0, 2, 2, 0, 0, 0, 2}, phases)

	// 下发切换后从该相位重新计时
	require.NoError(t, s.SetPhase(ctx, "F", 0))
	require.NoError(t, s.Step(ctx))
	phase, err := s.Phase(ctx, "F")
	require.NoError(t, err)
	assert.Equal(t, int32(0), phase)

	_, err = queuesim.LoadScenario(writeScenario(t, fixedTimeScenario))
	require.NoError(t, err)
	err = queuesim.New("").Start(ctx, entity.Scenario{
		ConfigPath: writeScenario(t, `
end: 10
junctions:
  - id: F
    fixed_time: true
    program:
      - state: G
`),
		StepLength: 1,
	})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}
