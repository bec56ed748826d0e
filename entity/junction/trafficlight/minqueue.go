package trafficlight

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

const timeEps = 1e-6 // 仿真时间比较容差，避免浮点步长累积误差

// ControlState 控制器逻辑状态
type ControlState int

const (
	Holding  ControlState = iota // 当前相位未满最小绿灯时间，不评估选相
	Eligible                     // 已满最小绿灯时间，可以评估切换
)

func (s ControlState) String() string {
	switch s {
	case Holding:
		return "HOLDING"
	case Eligible:
		return "ELIGIBLE"
	default:
		return fmt.Sprintf("ControlState(%d)", int(s))
	}
}

// Decision 一次决策的结果
type Decision struct {
	State     ControlState // 决策时的状态
	Evaluated bool         // 本步是否调用了选相器
	Switch    bool         // 是否需要下发切换
	From      int32        // 当前相位
	To        int32        // 目标相位（不切换时等于From）
}

// SwitchRecord 一次已执行的相位切换
type SwitchRecord struct {
	T      float64        // 切换时刻
	From   int32          // 原相位
	To     int32          // 新相位
	Demand DemandSnapshot // 决策时的需求快照
}

// mqTlRuntime 最小排队信号灯运行时数据
// 功能：保存当前相位、上次切换时刻等控制器状态，只由控制循环修改
type mqTlRuntime struct {
	index       int32   // 当前相位
	switched    bool    // 是否发生过切换（未切换过时立即可评估）
	lastSwitchT float64 // 上次切换时刻
	evaluated   bool    // 是否评估过选相
	lastEvalT   float64 // 上次评估时刻
}

// MinQueueTrafficLight 带最小绿灯约束的排队最小化信号灯控制器
// 功能：在最小绿灯时间内保持相位，满足后按选相策略决定是否切换
type MinQueueTrafficLight struct {
	program          *SignalProgram
	selector         Selector
	minGreen         float64 // 最小绿灯时间（秒）
	decisionInterval float64 // 两次选相评估的最小间隔（秒），0表示每步评估
	runtime          mqTlRuntime
	history          []SwitchRecord
}

// NewMinQueueTrafficLight 创建最小排队信号灯控制器
// 参数：program-信控程序，selector-选相策略，minGreen-最小绿灯时间，decisionInterval-评估间隔
func NewMinQueueTrafficLight(program *SignalProgram, selector Selector, minGreen, decisionInterval float64) *MinQueueTrafficLight {
	return &MinQueueTrafficLight{
		program:          program,
		selector:         selector,
		minGreen:         minGreen,
		decisionInterval: decisionInterval,
		history:          make([]SwitchRecord, 0),
	}
}

// Init 以仿真器当前相位初始化，视为从未切换过
func (l *MinQueueTrafficLight) Init(phase int32) error {
	if !l.program.Valid(phase) {
		return fmt.Errorf("%w: initial phase %d out of range [0, %d)", entity.ErrConfiguration, phase, l.program.Len())
	}
	l.runtime = mqTlRuntime{index: phase}
	return nil
}

// Groups 选相器的需求分组
func (l *MinQueueTrafficLight) Groups() []DemandGroup {
	return l.selector.Groups()
}

// Phase 当前相位
func (l *MinQueueTrafficLight) Phase() int32 {
	return l.runtime.index
}

// SinceSwitch 距上次切换的时长，从未切换时为+Inf
func (l *MinQueueTrafficLight) SinceSwitch(t float64) float64 {
	if !l.runtime.switched {
		return math.Inf(1)
	}
	return t - l.runtime.lastSwitchT
}

// LastSwitch 上次切换时刻
func (l *MinQueueTrafficLight) LastSwitch() (float64, bool) {
	return l.runtime.lastSwitchT, l.runtime.switched
}

// State 给定时刻的控制状态
func (l *MinQueueTrafficLight) State(t float64) ControlState {
	if l.SinceSwitch(t)+timeEps < l.minGreen {
		return Holding
	}
	return Eligible
}

// RemainingHold 当前相位还需保持的时长
func (l *MinQueueTrafficLight) RemainingHold(t float64) float64 {
	return math.Max(0, l.minGreen-l.SinceSwitch(t))
}

// Update 执行一步决策
// 功能：同步仿真器观测到的相位，在ELIGIBLE状态下调用选相器
// 参数：t-当前仿真时间，demand-本步需求快照，observed-仿真器当前相位
// 返回：决策结果；选相器给出越界相位时返回ErrInvalidCommand
// 算法说明：
// 1. 观测相位与记录不一致时以观测为准（不重置计时）
// 2. HOLDING状态直接返回
// 3. 未到评估间隔时保持ELIGIBLE不评估
// 4. 选相结果与当前相位相同则保持，不同则要求切换（由Commit确认）
func (l *MinQueueTrafficLight) Update(t float64, demand DemandSnapshot, observed int32) (Decision, error) {
	if observed != l.runtime.index {
		if l.program.Valid(observed) {
			log.Debugf("t=%.1f: phase changed outside controller %d -> %d", t, l.runtime.index, observed)
			l.runtime.index = observed
		} else {
			log.Warnf("t=%.1f: simulation reports phase %d outside program, keep %d", t, observed, l.runtime.index)
		}
	}
	d := Decision{
		State: l.State(t),
		From:  l.runtime.index,
		To:    l.runtime.index,
	}
	if d.State == Holding {
		return d, nil
	}
	if l.decisionInterval > 0 && l.runtime.evaluated && t-l.runtime.lastEvalT+timeEps < l.decisionInterval {
		return d, nil
	}
	d.Evaluated = true
	d.To = l.selector.Select(demand, l.runtime.index)
	l.runtime.evaluated = true
	l.runtime.lastEvalT = t
	if d.To == d.From {
		return d, nil
	}
	if !l.program.Valid(d.To) {
		return d, fmt.Errorf("%w: selector chose phase %d, program has %d phases", entity.ErrInvalidCommand, d.To, l.program.Len())
	}
	d.Switch = true
	return d, nil
}

// Commit 确认切换已下发，开始新相位的最小绿灯计时
func (l *MinQueueTrafficLight) Commit(t float64, d Decision, demand DemandSnapshot) {
	if !d.Switch {
		return
	}
	l.runtime.index = d.To
	l.runtime.switched = true
	l.runtime.lastSwitchT = t
	l.history = append(l.history, SwitchRecord{
		T:      t,
		From:   d.From,
		To:     d.To,
		Demand: append(DemandSnapshot(nil), demand...),
	})
}

// Hold 从t时刻重新开始最小绿灯计时，相位不变，不记入切换记录
func (l *MinQueueTrafficLight) Hold(t float64) {
	l.runtime.switched = true
	l.runtime.lastSwitchT = t
}

// History 已执行的切换记录
func (l *MinQueueTrafficLight) History() []SwitchRecord {
	res := make([]SwitchRecord, len(l.history))
	copy(res, l.history)
	return res
}
