package entity

import (
	"context"
	"fmt"
)

// ApproachKind 进口道度量单位
type ApproachKind int

const (
	ApproachLane ApproachKind = iota // 车道
	ApproachEdge                     // 道路（路段）
)

func (k ApproachKind) String() string {
	switch k {
	case ApproachLane:
		return "lane"
	case ApproachEdge:
		return "edge"
	default:
		return fmt.Sprintf("ApproachKind(%d)", int(k))
	}
}

// ParseApproachKind 解析配置中的进口道类型，空串默认为车道
func ParseApproachKind(s string) (ApproachKind, error) {
	switch s {
	case "", "lane":
		return ApproachLane, nil
	case "edge":
		return ApproachEdge, nil
	default:
		return ApproachLane, fmt.Errorf("%w: unknown approach kind %q (lane|edge)", ErrConfiguration, s)
	}
}

// SignalPhase 仿真器给出的一个信控相位
// 说明：State每个字符对应一个受控连接（link index）的通行权
type SignalPhase struct {
	State    string  // 相位状态串，如"GGrr"
	Duration float64 // 名义时长（仅供参考，控制器不使用）
}

// ControlledLink 受控连接表中的一项
type ControlledLink struct {
	In  string // 进口车道
	Out string // 出口车道
	Via string // 路口内部车道
}

// Scenario 启动仿真会话所需的参数
type Scenario struct {
	ConfigPath string   // 场景配置文件路径
	OutputDir  string   // 输出目录
	StepLength float64  // 仿真步长（秒）
	GUI        bool     // 是否使用图形界面
	ExtraArgs  []string // 透传给仿真器的参数
}

// ISimulation 仿真控制接口（依赖倒置）
// 功能：控制循环与需求采样器通过该接口访问外部仿真器
// 说明：所有调用均为同步请求/应答；连接类失败需包装ErrSimulationConnectivity
type ISimulation interface {
	Start(ctx context.Context, scenario Scenario) error // 按场景启动会话
	Step(ctx context.Context) error                     // 推进一个仿真步，仿真结束时返回ErrSimulationEnded
	Time(ctx context.Context) (float64, error)          // 当前仿真时间
	MinExpectedNumber(ctx context.Context) (int32, error)

	Program(ctx context.Context, tlsID string) ([]SignalPhase, error)
	ControlledLinks(ctx context.Context, tlsID string) ([]ControlledLink, error)
	Phase(ctx context.Context, tlsID string) (int32, error)
	SetPhase(ctx context.Context, tlsID string, index int32) error

	// 读取进口道的停驶车辆数，进口道不存在时返回ErrTransientRead
	HaltingNumber(ctx context.Context, kind ApproachKind, id string) (int32, error)

	Close() error // 结束会话并释放所有资源
}
