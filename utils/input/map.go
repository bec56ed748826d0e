package input

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

// 从地图中缺省信控程序时每个相位的名义时长（秒）
const defaultPhaseDuration = 30

// LaneInfo 进口车道的静态属性
type LaneInfo struct {
	ID       string  // 车道名
	Edge     string  // 所属道路名
	Length   float64 // 长度（米）
	MaxSpeed float64 // 限速（米/秒）
}

// JunctionTopology 路口的信控拓扑
type JunctionTopology struct {
	PbID   int32                   // 地图中的路口ID
	ID     string                  // 信号灯ID
	Phases []entity.SignalPhase    // 信控程序
	Links  []entity.ControlledLink // 受控连接表，下标与相位状态串一一对应
	Lanes  []LaneInfo              // 所有进口车道
}

// Map 地图索引
// 说明：车道按"<道路ID>_<道路内序号>"命名，路口内部车道按":<路口ID>_<序号>"命名
type Map struct {
	lanes     map[int32]*mapv2.Lane
	junctions map[int32]*mapv2.Junction
	laneNames map[int32]string
	laneEdges map[int32]string
}

// NewMap 建立地图索引
func NewMap(m *mapv2.Map) *Map {
	res := &Map{
		lanes: lo.SliceToMap(m.Lanes, func(l *mapv2.Lane) (int32, *mapv2.Lane) {
			return l.Id, l
		}),
		junctions: lo.SliceToMap(m.Junctions, func(j *mapv2.Junction) (int32, *mapv2.Junction) {
			return j.Id, j
		}),
		laneNames: make(map[int32]string),
		laneEdges: make(map[int32]string),
	}
	for _, r := range m.Roads {
		edge := fmt.Sprint(r.Id)
		for i, id := range r.LaneIds {
			res.laneNames[id] = fmt.Sprintf("%s_%d", edge, i)
			res.laneEdges[id] = edge
		}
	}
	for _, j := range m.Junctions {
		edge := fmt.Sprintf(":%d", j.Id)
		for i, id := range j.LaneIds {
			res.laneNames[id] = fmt.Sprintf("%s_%d", edge, i)
			res.laneEdges[id] = edge
		}
	}
	log.Infof("Lane: %v", len(m.Lanes))
	log.Infof("Road: %v", len(m.Roads))
	log.Infof("Junction: %v", len(m.Junctions))
	return res
}

// LaneName 车道名，不在任何道路或路口中的车道使用其数字ID
func (m *Map) LaneName(id int32) string {
	if name, ok := m.laneNames[id]; ok {
		return name
	}
	return fmt.Sprint(id)
}

// laneLength 车道中心线长度
func laneLength(l *mapv2.Lane) float64 {
	if l.CenterLine == nil || len(l.CenterLine.Nodes) < 2 {
		return 0
	}
	line := lo.Map(l.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
		return geometry.NewPointFromPb(node)
	})
	lengths := geometry.GetPolylineLengths2D(line)
	return lengths[len(lengths)-1]
}

// uniqueConnection 取唯一的前驱/后继车道
func uniqueConnection(conns []*mapv2.LaneConnection) (int32, bool) {
	if len(conns) != 1 {
		return 0, false
	}
	return conns[0].Id, true
}

// Junction 提取路口的信控拓扑
// 功能：以路口内部车道为受控连接，前驱车道为进口道、后继车道为出口道
// 参数：id-地图中的路口ID
// 返回：信控拓扑；路口不存在、没有信控程序或状态串长度与车道数不一致时返回ErrConfiguration
// 说明：优先使用固定信控程序，不存在时使用可用相位（名义时长取默认值）；非机动车道不作为进口道
func (m *Map) Junction(id int32) (*JunctionTopology, error) {
	j, ok := m.junctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: no junction %d in map", entity.ErrConfiguration, id)
	}
	res := &JunctionTopology{
		PbID:  id,
		ID:    fmt.Sprint(id),
		Links: make([]entity.ControlledLink, len(j.LaneIds)),
		Lanes: make([]LaneInfo, 0),
	}
	if j.FixedProgram != nil && len(j.FixedProgram.Phases) > 0 {
		res.Phases = lo.Map(j.FixedProgram.Phases, func(p *mapv2.Phase, _ int) entity.SignalPhase {
			return entity.SignalPhase{State: stateString(p.States), Duration: p.Duration}
		})
	} else {
		res.Phases = lo.Map(j.Phases, func(p *mapv2.AvailablePhase, _ int) entity.SignalPhase {
			return entity.SignalPhase{State: stateString(p.States), Duration: defaultPhaseDuration}
		})
	}
	if len(res.Phases) == 0 {
		return nil, fmt.Errorf("%w: junction %d has no signal program", entity.ErrConfiguration, id)
	}
	for i, p := range res.Phases {
		if len(p.State) != len(j.LaneIds) {
			return nil, fmt.Errorf(
				"%w: junction %d phase %d has %d states for %d lanes",
				entity.ErrConfiguration, id, i, len(p.State), len(j.LaneIds),
			)
		}
	}
	seen := make(map[int32]struct{})
	for i, laneID := range j.LaneIds {
		link := entity.ControlledLink{Via: m.LaneName(laneID)}
		l, ok := m.lanes[laneID]
		if !ok {
			return nil, fmt.Errorf("%w: junction %d references missing lane %d", entity.ErrConfiguration, id, laneID)
		}
		if out, ok := uniqueConnection(l.Successors); ok {
			link.Out = m.LaneName(out)
		}
		if l.Type == mapv2.LaneType_LANE_TYPE_DRIVING {
			if in, ok := uniqueConnection(l.Predecessors); ok {
				link.In = m.LaneName(in)
				if _, dup := seen[in]; !dup {
					seen[in] = struct{}{}
					if pre, ok := m.lanes[in]; ok {
						res.Lanes = append(res.Lanes, LaneInfo{
							ID:       link.In,
							Edge:     m.laneEdges[in],
							Length:   laneLength(pre),
							MaxSpeed: pre.MaxSpeed,
						})
					}
				}
			} else {
				log.Warnf("junction %d: lane %d has %d predecessors, skip", id, laneID, len(l.Predecessors))
			}
		}
		res.Links[i] = link
	}
	return res, nil
}

// stateString 信号灯状态转为状态串，绿灯G、黄灯y、其余r
func stateString(states []mapv2.LightState) string {
	buf := make([]byte, len(states))
	for i, s := range states {
		switch s {
		case mapv2.LightState_LIGHT_STATE_GREEN:
			buf[i] = 'G'
		case mapv2.LightState_LIGHT_STATE_YELLOW:
			buf[i] = 'y'
		default:
			buf[i] = 'r'
		}
	}
	return string(buf)
}
