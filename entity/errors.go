package entity

import "errors"

// 控制会话的错误分类
// 说明：各模块用fmt.Errorf("%w: ...")包装以下错误，调用方通过errors.Is判断类别
var (
	// 信控程序/拓扑/配置不合法，启动阶段即终止，不推进任何仿真时间
	ErrConfiguration = errors.New("configuration error")
	// 单个进口道本步读取失败，按0计入，下一步自然重试
	ErrTransientRead = errors.New("transient read error")
	// 仿真控制接口不可达或协议错误，终止会话
	ErrSimulationConnectivity = errors.New("simulation connectivity error")
	// 下发了越界的相位，属于选相逻辑缺陷
	ErrInvalidCommand = errors.New("invalid command error")
	// 仿真已结束（正常终止条件之一）
	ErrSimulationEnded = errors.New("simulation ended")
)
