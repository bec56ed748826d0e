package junction

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/lane"
)

const (
	PolicyGreedy = "greedy" // 全局贪心：每个相位单独统计需求
	PolicyAxis   = "axis"   // 方向轴贪心：按运维给出的轴划分统计需求
)

// Options 路口控制参数，会话开始时构造一次，之后只读
type Options struct {
	PbID             int32               // 状态查询接口使用的数字路口ID
	Policy           string              // 选相策略 greedy|axis
	Axes             []trafficlight.Axis // 方向轴划分（仅axis策略）
	ApproachKind     entity.ApproachKind // 进口道度量单位
	MinGreen         float64             // 最小绿灯时间（秒）
	DecisionInterval float64             // 选相评估间隔（秒），0表示每步评估
}

// Status 每步结束后发布的只读状态快照
type Status struct {
	T             float64
	Phase         int32
	State         trafficlight.ControlState
	RemainingHold float64
	Demand        []int32
	Switches      int
}

// Junction 受控路口
// 功能：在每个仿真步中完成采样、决策、下发相位的完整流程
// 说明：只由控制循环所在的goroutine调用；其他goroutine只能读取Status快照
type Junction struct {
	id      string
	pbID    int32
	sim     entity.ISimulation
	program *trafficlight.SignalProgram
	links   []entity.ControlledLink

	trafficLight ITrafficLight
	sampler      *lane.Sampler
	groups       [][]string // 各需求分组的进口道，与DemandSnapshot一一对应

	status atomic.Pointer[Status]
}

// New 创建受控路口
// 功能：从仿真器读取信控程序和受控连接表，按策略构建选相器和需求分组
// 参数：ctx-上下文，sim-仿真控制接口，id-信号灯ID，opts-控制参数
// 返回：受控路口；程序或拓扑不合法时返回ErrConfiguration
func New(ctx context.Context, sim entity.ISimulation, id string, opts Options) (*Junction, error) {
	phases, err := sim.Program(ctx, id)
	if err != nil {
		return nil, err
	}
	program, err := trafficlight.NewSignalProgram(phases)
	if err != nil {
		return nil, fmt.Errorf("traffic light %q: %w", id, err)
	}
	links, err := sim.ControlledLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	var selector trafficlight.Selector
	switch opts.Policy {
	case "", PolicyGreedy:
		lg, err := trafficlight.BuildLinkGroup(program, links)
		if err != nil {
			return nil, fmt.Errorf("traffic light %q: %w", id, err)
		}
		if opts.ApproachKind == entity.ApproachEdge {
			lg = lo.Map(lg, func(lanes []string, _ int) []string {
				return lane.EdgesOf(lanes)
			})
		}
		selector = trafficlight.NewGreedySelector(lg)
	case PolicyAxis:
		grouping, err := trafficlight.NewAxisGrouping(opts.Axes, program)
		if err != nil {
			return nil, fmt.Errorf("traffic light %q: %w", id, err)
		}
		warnApproaches(id, grouping, links, opts.ApproachKind)
		selector = trafficlight.NewAxisSelector(grouping)
	default:
		return nil, fmt.Errorf("%w: unknown policy %q (greedy|axis)", entity.ErrConfiguration, opts.Policy)
	}
	if opts.MinGreen < 0 {
		return nil, fmt.Errorf("%w: negative min green %v", entity.ErrConfiguration, opts.MinGreen)
	}
	groups := lo.Map(selector.Groups(), func(g trafficlight.DemandGroup, _ int) []string {
		return g.Approaches
	})
	j := &Junction{
		id:           id,
		pbID:         opts.PbID,
		sim:          sim,
		program:      program,
		links:        links,
		trafficLight: trafficlight.NewMinQueueTrafficLight(program, selector, opts.MinGreen, opts.DecisionInterval),
		sampler:      lane.NewSampler(sim, opts.ApproachKind),
		groups:       groups,
	}
	for _, g := range selector.Groups() {
		log.Debugf("%s: group %q -> phase %d, approaches %v", id, g.Name, g.Phase, g.Approaches)
	}
	return j, nil
}

// warnApproaches 方向轴由运维给出，可以包含不直接连接路口的上游道路，只对不在受控连接表中的进口道给出提示
func warnApproaches(id string, grouping *trafficlight.AxisGrouping, links []entity.ControlledLink, kind entity.ApproachKind) {
	inbound := lo.FilterMap(links, func(l entity.ControlledLink, _ int) (string, bool) {
		return l.In, l.In != ""
	})
	if kind == entity.ApproachEdge {
		inbound = lane.EdgesOf(inbound)
	}
	known := lo.Keyify(inbound)
	for _, axis := range grouping.Axes() {
		for _, approach := range axis.Approaches {
			if _, ok := known[approach]; !ok {
				log.Warnf("%s: axis %q approach %q is not an inbound %s of the junction", id, axis.Name, approach, kind)
			}
		}
	}
}

// Init 以仿真器当前相位初始化控制器
// 参数：ctx-上下文，t-当前仿真时间，align-是否在第一步之前立即选相并下发（无论是否切换都开始最小绿灯计时）
func (j *Junction) Init(ctx context.Context, t float64, align bool) error {
	phase, err := j.sim.Phase(ctx, j.id)
	if err != nil {
		return err
	}
	if err := j.trafficLight.Init(phase); err != nil {
		return fmt.Errorf("traffic light %q: %w", j.id, err)
	}
	if align {
		d, err := j.Tick(ctx, t)
		if err != nil {
			return err
		}
		if !d.Switch {
			// 最优相位就是当前相位：同样从此刻开始最小绿灯
			j.trafficLight.Hold(t)
			j.publish(t, j.Status().Demand)
		}
		return nil
	}
	j.publish(t, nil)
	return nil
}

// Tick 执行一步控制
// 功能：采样需求，读取当前相位，决策并在需要时下发切换
// 参数：ctx-上下文，t-当前仿真时间
// 返回：本步决策；采样、读取或下发失败时返回错误
func (j *Junction) Tick(ctx context.Context, t float64) (trafficlight.Decision, error) {
	demand, err := j.sampler.Snapshot(ctx, j.groups)
	if err != nil {
		return trafficlight.Decision{}, err
	}
	observed, err := j.sim.Phase(ctx, j.id)
	if err != nil {
		return trafficlight.Decision{}, err
	}
	d, err := j.trafficLight.Update(t, demand, observed)
	if err != nil {
		return d, err
	}
	if d.Switch {
		if err := j.sim.SetPhase(ctx, j.id, d.To); err != nil {
			return d, err
		}
		j.trafficLight.Commit(t, d, demand)
		log.Infof("t=%.1f %s: switch phase %d -> %d, demand %v", t, j.id, d.From, d.To, demand)
	}
	j.publish(t, demand)
	return d, nil
}

func (j *Junction) publish(t float64, demand []int32) {
	j.status.Store(&Status{
		T:             t,
		Phase:         j.trafficLight.Phase(),
		State:         j.trafficLight.State(t),
		RemainingHold: j.trafficLight.RemainingHold(t),
		Demand:        demand,
		Switches:      len(j.trafficLight.History()),
	})
}

// ID 信号灯ID
func (j *Junction) ID() string {
	return j.id
}

// Program 信控程序
func (j *Junction) Program() *trafficlight.SignalProgram {
	return j.program
}

// Links 受控连接表
func (j *Junction) Links() []entity.ControlledLink {
	return j.links
}

// Groups 需求分组
func (j *Junction) Groups() []trafficlight.DemandGroup {
	return j.trafficLight.Groups()
}

// History 已执行的切换记录
func (j *Junction) History() []trafficlight.SwitchRecord {
	return j.trafficLight.History()
}

// Status 最近一次发布的状态快照，Init之前为nil
// 说明：可被任意goroutine并发调用
func (j *Junction) Status() *Status {
	return j.status.Load()
}
