package junction

import (
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
)

// 依赖倒置，表达junction对信号灯控制器实现的接口需求

// 给状态查询接口提供的只读接口
type ITrafficLightGetter interface {
	Phase() int32                              // 当前相位
	State(t float64) trafficlight.ControlState // 给定时刻的控制状态
	RemainingHold(t float64) float64           // 当前相位还需保持的时长
	History() []trafficlight.SwitchRecord      // 已执行的切换
	Groups() []trafficlight.DemandGroup        // 需求分组
}

// 信号灯控制器接口
type ITrafficLight interface {
	ITrafficLightGetter
	Init(phase int32) error // 以仿真器当前相位初始化

	// 同步观测相位并做出决策
	Update(t float64, demand trafficlight.DemandSnapshot, observed int32) (trafficlight.Decision, error)
	// 确认切换已下发
	Commit(t float64, d trafficlight.Decision, demand trafficlight.DemandSnapshot)
	// 保持当前相位并重新开始最小绿灯计时
	Hold(t float64)
}
