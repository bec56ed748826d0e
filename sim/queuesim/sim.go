// 进程内点排队仿真器
// 每条进口车道是一个点排队，信号灯放行时按饱和流率驶离；用于离线运行和测试
package queuesim

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"io"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/randengine"
)

const timeEps = 1e-6

// Simulation 点排队仿真器，实现entity.ISimulation
// 说明：只能由单个goroutine调用
type Simulation struct {
	cacheDir string

	scenario *Scenario
	outDir   string
	dt       float64
	t        float64
	started  bool
	closed   bool

	signals map[string]*signal
	lanes   []*queueLane
	byLane  map[string]*queueLane
	byEdge  map[string][]*queueLane
}

var _ entity.ISimulation = (*Simulation)(nil)

// New 创建仿真器
// 参数：cacheDir-场景引用地图时使用的缓存目录
func New(cacheDir string) *Simulation {
	return &Simulation{cacheDir: cacheDir}
}

// Start 加载场景并初始化
// 说明：透传参数支持 -seed、-end、-demand-end 覆盖场景配置；不支持图形界面
func (s *Simulation) Start(ctx context.Context, scenario entity.Scenario) error {
	if s.started {
		return fmt.Errorf("%w: session already started", entity.ErrConfiguration)
	}
	sc, err := LoadScenario(scenario.ConfigPath)
	if err != nil {
		return err
	}
	if err := applyArgs(sc, scenario.ExtraArgs); err != nil {
		return err
	}
	if scenario.GUI {
		log.Debug("queuesim has no gui, running headless")
	}
	return s.init(sc, scenario.OutputDir, scenario.StepLength)
}

// applyArgs 解析透传参数
func applyArgs(sc *Scenario, args []string) error {
	fs := flag.NewFlagSet("queuesim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	seed := fs.Uint64("seed", sc.Seed, "random seed")
	end := fs.Float64("end", sc.End, "scenario end time")
	demandEnd := fs.Float64("demand-end", sc.DemandEnd, "time after which no vehicle arrives")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: simulator args %v: %v", entity.ErrConfiguration, args, err)
	}
	sc.Seed, sc.End, sc.DemandEnd = *seed, *end, *demandEnd
	return nil
}

// init 根据场景初始化车道和信控
func (s *Simulation) init(sc *Scenario, outDir string, dt float64) error {
	if dt <= 0 {
		return fmt.Errorf("%w: step length must be > 0, got %v", entity.ErrConfiguration, dt)
	}
	if err := sc.resolve(s.cacheDir); err != nil {
		return err
	}
	s.scenario = sc
	s.outDir = outDir
	s.dt = dt
	s.t = sc.Begin
	s.signals = lo.SliceToMap(sc.Junctions, func(j JunctionSpec) (string, *signal) {
		return j.ID, newSignal(j)
	})
	s.lanes = parallel.GoMap(sc.Lanes, func(spec LaneSpec) *queueLane {
		return newQueueLane(spec, sc.Begin, sc.DemandEnd, randengine.New(sc.Seed^seedOf(spec.ID)))
	})
	s.byLane = lo.SliceToMap(s.lanes, func(l *queueLane) (string, *queueLane) {
		return l.spec.ID, l
	})
	s.byEdge = lo.GroupBy(s.lanes, func(l *queueLane) string {
		return l.spec.Edge
	})
	s.started = true
	log.Infof("scenario loaded: %d junctions, %d lanes, [%v, %v)", len(s.signals), len(s.lanes), sc.Begin, sc.End)
	return nil
}

// seedOf 车道的随机种子偏移，使各车道的到达序列相互独立且与车道顺序无关
func seedOf(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

func (s *Simulation) check() error {
	if !s.started {
		return fmt.Errorf("%w: session not started", entity.ErrSimulationConnectivity)
	}
	if s.closed {
		return fmt.Errorf("%w: session closed", entity.ErrSimulationConnectivity)
	}
	return nil
}

// updateRates 根据各路口当前相位计算每条车道的放行率
// 说明：车道的任一受控连接为G时按饱和流率放行，只有g时按一半放行；不受任何信号控制的车道总是放行
func (s *Simulation) updateRates() {
	best := make(map[string]byte)
	for _, sig := range s.signals {
		state := sig.state()
		for i, link := range sig.spec.Links {
			if link.In == "" || i >= len(state) {
				continue
			}
			c := state[i]
			if prev, ok := best[link.In]; !ok || rank(c) > rank(prev) {
				best[link.In] = c
			}
		}
	}
	for _, l := range s.lanes {
		c, controlled := best[l.spec.ID]
		switch {
		case !controlled:
			l.rate = l.spec.SaturationFlow
		case c == 'G':
			l.rate = l.spec.SaturationFlow
		case c == 'g':
			l.rate = l.spec.SaturationFlow / 2
		default:
			l.rate = 0
		}
	}
}

func rank(c byte) int {
	switch {
	case c == 'G':
		return 2
	case trafficlight.HasRightOfWay(c):
		return 1
	default:
		return 0
	}
}

// Step 推进一步
// 说明：到达结束时刻后返回ErrSimulationEnded，不再推进
func (s *Simulation) Step(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.t+timeEps >= s.scenario.End {
		return entity.ErrSimulationEnded
	}
	s.updateRates()
	t := s.t + s.dt
	parallel.GoFor(s.lanes, func(l *queueLane) { l.update(t, s.dt) })
	for _, sig := range s.signals {
		sig.update(s.dt)
	}
	s.t = t
	return nil
}

func (s *Simulation) Time(ctx context.Context) (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.t, nil
}

// MinExpectedNumber 网络中的车辆数加上尚未出发的车辆数
func (s *Simulation) MinExpectedNumber(ctx context.Context) (int32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return lo.SumBy(s.lanes, func(l *queueLane) int32 { return l.remaining() }), nil
}

func (s *Simulation) lookup(tlsID string) (*signal, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	sig, ok := s.signals[tlsID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown traffic light %q", entity.ErrConfiguration, tlsID)
	}
	return sig, nil
}

func (s *Simulation) Program(ctx context.Context, tlsID string) ([]entity.SignalPhase, error) {
	sig, err := s.lookup(tlsID)
	if err != nil {
		return nil, err
	}
	return lo.Map(sig.spec.Program, func(p PhaseSpec, _ int) entity.SignalPhase {
		return entity.SignalPhase{State: p.State, Duration: p.Duration}
	}), nil
}

func (s *Simulation) ControlledLinks(ctx context.Context, tlsID string) ([]entity.ControlledLink, error) {
	sig, err := s.lookup(tlsID)
	if err != nil {
		return nil, err
	}
	return lo.Map(sig.spec.Links, func(l LinkSpec, _ int) entity.ControlledLink {
		return entity.ControlledLink{In: l.In, Out: l.Out, Via: l.Via}
	}), nil
}

func (s *Simulation) Phase(ctx context.Context, tlsID string) (int32, error) {
	sig, err := s.lookup(tlsID)
	if err != nil {
		return 0, err
	}
	return sig.phase, nil
}

// SetPhase 切换相位，相位保持到下一次切换（fixed_time的信号灯从该相位开始重新计时）
func (s *Simulation) SetPhase(ctx context.Context, tlsID string, index int32) error {
	sig, err := s.lookup(tlsID)
	if err != nil {
		return err
	}
	if index < 0 || int(index) >= len(sig.spec.Program) {
		return fmt.Errorf("%w: phase %d out of range [0, %d)", entity.ErrInvalidCommand, index, len(sig.spec.Program))
	}
	sig.set(index)
	return nil
}

func (s *Simulation) HaltingNumber(ctx context.Context, kind entity.ApproachKind, id string) (int32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	switch kind {
	case entity.ApproachLane:
		if l, ok := s.byLane[id]; ok {
			return l.halting(), nil
		}
	case entity.ApproachEdge:
		if lanes, ok := s.byEdge[id]; ok {
			return lo.SumBy(lanes, func(l *queueLane) int32 { return l.halting() }), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", entity.ErrTransientRead, kind, id)
}

// Close 结束会话，将道路统计和出行记录写入输出目录
// 说明：可重复调用，只在第一次写出
func (s *Simulation) Close() error {
	if !s.started || s.closed {
		return nil
	}
	s.closed = true
	edges, trips := collect(s.lanes)
	if s.outDir == "" {
		return nil
	}
	if err := writeRecords(s.outDir, s.scenario.Begin, s.t, edges, trips); err != nil {
		return err
	}
	log.Infof("records written to %s: %d edges, %d trips", s.outDir, len(edges), len(trips))
	return nil
}
