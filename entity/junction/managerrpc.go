package junction

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Register 将路口状态查询服务注册到sidecar
// 说明：服务只读，注册时不需要加锁
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
		syncer.WithNoLock(),
	)
}

// GetTrafficLight RPC接口：获取受控路口的信号灯状态
// 功能：返回信控程序、当前相位以及当前相位还需保持的最小绿灯时长
// 说明：控制循环尚未初始化时返回空响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	req := in.Msg
	j := m.junction
	if req.JunctionId != j.pbID {
		return nil, connect.NewError(
			connect.CodeInvalidArgument,
			fmt.Errorf("junction id %d is not controlled (controlled: %d)", req.JunctionId, j.pbID),
		)
	}
	status := j.Status()
	if status == nil {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  j.program.ToPb(j.pbID),
		PhaseIndex:    status.Phase,
		TimeRemaining: status.RemainingHold,
	}), nil
}
