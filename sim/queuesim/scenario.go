package queuesim

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	entitylane "github.com/tsinghua-fib-lab/minqueue-tls/entity/lane"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/config"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/input"
	"gopkg.in/yaml.v2"
)

// PhaseSpec 信控相位
type PhaseSpec struct {
	State    string  `yaml:"state"`
	Duration float64 `yaml:"duration,omitempty"`
}

// LinkSpec 受控连接
type LinkSpec struct {
	In  string `yaml:"in"`
	Out string `yaml:"out,omitempty"`
	Via string `yaml:"via,omitempty"`
}

// JunctionSpec 信控路口
// 说明：给出MapID时从地图提取信控程序和受控连接，否则使用Program和Links
type JunctionSpec struct {
	ID           string      `yaml:"id"`
	MapID        *int32      `yaml:"map_id,omitempty"`
	InitialPhase int32       `yaml:"initial_phase,omitempty"`
	FixedTime    bool        `yaml:"fixed_time,omitempty"` // 按程序时长自动轮转相位
	Program      []PhaseSpec `yaml:"program,omitempty"`
	Links        []LinkSpec  `yaml:"links,omitempty"`
}

// LaneSpec 进口车道
// 说明：车道是点排队模型，车辆以自由流速度行驶到停车线后排队，放行时按饱和流率驶离
type LaneSpec struct {
	ID             string             `yaml:"id"`
	Edge           string             `yaml:"edge,omitempty"`            // 所属道路，默认由车道ID推出
	Length         float64            `yaml:"length,omitempty"`          // 长度（米）
	MaxSpeed       float64            `yaml:"max_speed,omitempty"`       // 自由流速度（米/秒）
	ArrivalRate    float64            `yaml:"arrival_rate,omitempty"`    // 到达率（辆/秒）
	SaturationFlow float64            `yaml:"saturation_flow,omitempty"` // 饱和流率（辆/秒）
	InitialQueue   int                `yaml:"initial_queue,omitempty"`   // 开始时停车线前的排队车辆数
	VTypes         map[string]float64 `yaml:"vtypes,omitempty"`          // 车型->权重
}

// Scenario 场景配置
type Scenario struct {
	Seed         uint64         `yaml:"seed,omitempty"`
	Begin        float64        `yaml:"begin,omitempty"`      // 开始时刻（秒）
	End          float64        `yaml:"end"`                  // 结束时刻（秒）
	DemandEnd    float64        `yaml:"demand_end,omitempty"` // 停止产生到达的时刻，默认等于End
	Input        *config.Input  `yaml:"input,omitempty"`      // 地图输入（可选）
	LaneDefaults LaneSpec       `yaml:"lane_defaults,omitempty"`
	Junctions    []JunctionSpec `yaml:"junctions"`
	Lanes        []LaneSpec     `yaml:"lanes,omitempty"`
}

// LoadScenario 读取场景配置文件
func LoadScenario(path string) (*Scenario, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read scenario %s: %v", entity.ErrConfiguration, path, err)
	}
	var s Scenario
	if err := yaml.UnmarshalStrict(file, &s); err != nil {
		return nil, fmt.Errorf("%w: parse scenario %s: %v", entity.ErrConfiguration, path, err)
	}
	return &s, nil
}

// resolve 补全场景
// 功能：从地图中提取路口拓扑，补齐车道默认参数并校验
// 参数：cacheDir-地图缓存目录
// 算法说明：
// 1. 对带MapID的路口，从地图提取信控程序、受控连接和进口车道
// 2. 受控连接引用但未声明的进口车道按默认参数补齐
// 3. 校验时间范围、相位和车道参数
func (s *Scenario) resolve(cacheDir string) error {
	var m *input.Map
	declared := make(map[string]int)
	for i := range s.Lanes {
		declared[s.Lanes[i].ID] = i
	}
	for i := range s.Junctions {
		j := &s.Junctions[i]
		if j.MapID == nil {
			continue
		}
		if m == nil {
			if s.Input == nil {
				return fmt.Errorf("%w: junction %q has map_id but scenario has no input", entity.ErrConfiguration, j.ID)
			}
			var err error
			if m, err = input.Load(*s.Input, cacheDir); err != nil {
				return err
			}
		}
		topo, err := m.Junction(*j.MapID)
		if err != nil {
			return err
		}
		if j.ID == "" {
			j.ID = topo.ID
		}
		j.Program = lo.Map(topo.Phases, func(p entity.SignalPhase, _ int) PhaseSpec {
			return PhaseSpec{State: p.State, Duration: p.Duration}
		})
		j.Links = lo.Map(topo.Links, func(l entity.ControlledLink, _ int) LinkSpec {
			return LinkSpec{In: l.In, Out: l.Out, Via: l.Via}
		})
		for _, info := range topo.Lanes {
			if idx, ok := declared[info.ID]; ok {
				l := &s.Lanes[idx]
				l.Edge = lo.Ternary(l.Edge == "", info.Edge, l.Edge)
				l.Length = lo.Ternary(l.Length == 0, info.Length, l.Length)
				l.MaxSpeed = lo.Ternary(l.MaxSpeed == 0, info.MaxSpeed, l.MaxSpeed)
				continue
			}
			declared[info.ID] = len(s.Lanes)
			s.Lanes = append(s.Lanes, LaneSpec{ID: info.ID, Edge: info.Edge, Length: info.Length, MaxSpeed: info.MaxSpeed})
		}
	}
	for _, j := range s.Junctions {
		for _, l := range j.Links {
			if l.In == "" {
				continue
			}
			if _, ok := declared[l.In]; !ok {
				declared[l.In] = len(s.Lanes)
				s.Lanes = append(s.Lanes, LaneSpec{ID: l.In})
			}
		}
	}
	for i := range s.Lanes {
		s.Lanes[i] = s.withDefaults(s.Lanes[i])
	}
	return s.validate()
}

// withDefaults 车道参数缺省时取默认值
func (s *Scenario) withDefaults(l LaneSpec) LaneSpec {
	d := s.LaneDefaults
	if l.Edge == "" {
		l.Edge = entitylane.EdgeOf(l.ID)
	}
	l.Length = lo.Ternary(l.Length == 0, lo.Ternary(d.Length == 0, 100, d.Length), l.Length)
	l.MaxSpeed = lo.Ternary(l.MaxSpeed == 0, lo.Ternary(d.MaxSpeed == 0, 13.89, d.MaxSpeed), l.MaxSpeed)
	l.ArrivalRate = lo.Ternary(l.ArrivalRate == 0, d.ArrivalRate, l.ArrivalRate)
	l.SaturationFlow = lo.Ternary(l.SaturationFlow == 0, lo.Ternary(d.SaturationFlow == 0, 0.5, d.SaturationFlow), l.SaturationFlow)
	l.InitialQueue = lo.Ternary(l.InitialQueue == 0, d.InitialQueue, l.InitialQueue)
	if len(l.VTypes) == 0 {
		l.VTypes = d.VTypes
	}
	if len(l.VTypes) == 0 {
		l.VTypes = map[string]float64{"passenger": 1}
	}
	return l
}

func (s *Scenario) validate() error {
	if s.End <= s.Begin {
		return fmt.Errorf("%w: scenario end %v must be after begin %v", entity.ErrConfiguration, s.End, s.Begin)
	}
	if s.DemandEnd == 0 || s.DemandEnd > s.End {
		s.DemandEnd = s.End
	}
	if len(s.Junctions) == 0 {
		return fmt.Errorf("%w: scenario has no junctions", entity.ErrConfiguration)
	}
	ids := make(map[string]struct{})
	for _, j := range s.Junctions {
		if j.ID == "" {
			return fmt.Errorf("%w: junction without id", entity.ErrConfiguration)
		}
		if _, ok := ids[j.ID]; ok {
			return fmt.Errorf("%w: duplicated junction %q", entity.ErrConfiguration, j.ID)
		}
		ids[j.ID] = struct{}{}
		if len(j.Program) > 0 && (j.InitialPhase < 0 || int(j.InitialPhase) >= len(j.Program)) {
			return fmt.Errorf("%w: junction %q initial phase %d out of range", entity.ErrConfiguration, j.ID, j.InitialPhase)
		}
		if j.FixedTime && lo.SumBy(j.Program, func(p PhaseSpec) float64 { return p.Duration }) <= 0 {
			return fmt.Errorf("%w: fixed time junction %q needs positive phase durations", entity.ErrConfiguration, j.ID)
		}
	}
	lanes := make(map[string]struct{})
	for _, l := range s.Lanes {
		if l.ID == "" {
			return fmt.Errorf("%w: lane without id", entity.ErrConfiguration)
		}
		if _, ok := lanes[l.ID]; ok {
			return fmt.Errorf("%w: duplicated lane %q", entity.ErrConfiguration, l.ID)
		}
		lanes[l.ID] = struct{}{}
		if l.Length <= 0 || l.MaxSpeed <= 0 || l.SaturationFlow <= 0 || l.ArrivalRate < 0 || l.InitialQueue < 0 {
			return fmt.Errorf("%w: lane %q has invalid parameters %+v", entity.ErrConfiguration, l.ID, l)
		}
		total := 0.
		for vtype, w := range l.VTypes {
			if w < 0 {
				return fmt.Errorf("%w: lane %q vtype %q has negative weight", entity.ErrConfiguration, l.ID, vtype)
			}
			total += w
		}
		if total <= 0 {
			return fmt.Errorf("%w: lane %q vtype weights sum to zero", entity.ErrConfiguration, l.ID)
		}
	}
	return nil
}

// vtypeNames 按名称排序的车型及其权重，保证同一种子下结果可复现
func vtypeNames(vtypes map[string]float64) ([]string, []float64) {
	names := lo.Keys(vtypes)
	sort.Strings(names)
	return names, lo.Map(names, func(name string, _ int) float64 { return vtypes[name] })
}
