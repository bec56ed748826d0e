package trafficlight

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
)

// LightStateOf 相位状态字符转为protobuf信号灯状态
// 说明：G/g为绿灯，y/Y为黄灯，其余（r/R/s/u/o/O等）按红灯处理
func LightStateOf(c byte) mapv2.LightState {
	switch c {
	case 'G', 'g':
		return mapv2.LightState_LIGHT_STATE_GREEN
	case 'y', 'Y':
		return mapv2.LightState_LIGHT_STATE_YELLOW
	default:
		return mapv2.LightState_LIGHT_STATE_RED
	}
}

// ToPb 将信控程序转换为protobuf格式，供状态查询接口输出
// 参数：junctionID-protobuf中的路口ID
func (p *SignalProgram) ToPb(junctionID int32) *mapv2.TrafficLight {
	return &mapv2.TrafficLight{
		JunctionId: junctionID,
		Phases: lo.Map(p.phases, func(phase Phase, _ int) *mapv2.Phase {
			states := make([]mapv2.LightState, len(phase.State))
			for i := 0; i < len(phase.State); i++ {
				states[i] = LightStateOf(phase.State[i])
			}
			return &mapv2.Phase{
				Duration: phase.Duration,
				States:   states,
			}
		}),
	}
}
