package junction

import (
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
)

// JunctionManager 受控路口的状态查询服务
// 功能：持有受控路口，对外提供只读的信号灯状态查询
// 说明：控制会话只控制一个路口，RPC处理在sidecar的goroutine中执行，只读取已发布的快照
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	junction *Junction
}

// NewManager 创建路口状态查询服务
func NewManager(j *Junction) *JunctionManager {
	return &JunctionManager{junction: j}
}

// Get 受控路口
func (m *JunctionManager) Get() *Junction {
	return m.junction
}
