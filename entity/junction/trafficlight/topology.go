package trafficlight

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

// DemandGroup 需求统计分组
// 说明：贪心策略下每个相位一组，方向轴策略下每个轴一组；Phase为该组对应的相位
type DemandGroup struct {
	Name       string
	Phase      int32
	Approaches []string
}

// DemandSnapshot 本步各分组的排队车辆数，与分组顺序一一对应，每步重新计算
type DemandSnapshot []int32

// LinkGroup 相位索引->该相位下获得通行权的进口道集合
type LinkGroup [][]string

// BuildLinkGroup 根据信控程序和受控连接表构建相位的放行进口道集合
// 功能：扫描每个相位的状态串，收集绿灯（G/g）连接对应的进口车道
// 参数：program-信控程序，links-受控连接表（下标即link index）
// 返回：与相位数等长的LinkGroup；所有相位都没有放行进口道时返回ErrConfiguration
// 说明：连接表与状态串长度不一致时只处理较短的部分，超出部分忽略并告警
func BuildLinkGroup(program *SignalProgram, links []entity.ControlledLink) (LinkGroup, error) {
	n := program.StateLength()
	if len(links) != n {
		log.Warnf(
			"controlled link table has %d entries but phase states have %d characters, extra entries are ignored",
			len(links), n,
		)
		n = min(n, len(links))
	}
	group := make(LinkGroup, program.Len())
	for _, phase := range program.phases {
		approaches := make([]string, 0)
		for i := 0; i < n; i++ {
			if !HasRightOfWay(phase.State[i]) {
				continue
			}
			if in := links[i].In; in != "" {
				approaches = append(approaches, in)
			}
		}
		approaches = lo.Uniq(approaches)
		sort.Strings(approaches)
		group[phase.Index] = approaches
	}
	if len(group.Approaches()) == 0 {
		return nil, fmt.Errorf("%w: no phase gives right-of-way to any approach", entity.ErrConfiguration)
	}
	return group, nil
}

// Approaches 所有相位放行进口道的并集（已排序）
func (g LinkGroup) Approaches() []string {
	all := lo.Uniq(lo.Flatten(g))
	sort.Strings(all)
	return all
}

// Groups 转换为按相位划分的需求分组
func (g LinkGroup) Groups() []DemandGroup {
	return lo.Map(g, func(approaches []string, i int) DemandGroup {
		return DemandGroup{
			Name:       fmt.Sprintf("phase %d", i),
			Phase:      int32(i),
			Approaches: approaches,
		}
	})
}

// Axis 一个方向轴（如南北向、东西向）
type Axis struct {
	Name       string   `yaml:"name"`
	Phase      int32    `yaml:"phase"`      // 独占服务该轴的相位
	Approaches []string `yaml:"approaches"` // 属于该轴的进口道
}

// AxisGrouping 方向轴划分，由运维人员手工给出，视为权威配置
type AxisGrouping struct {
	axes        []Axis
	phaseToAxis map[int32]int
}

// NewAxisGrouping 校验并创建方向轴划分
// 功能：检查轴数量、轴名、相位合法性以及进口道归属唯一性
// 参数：axes-按声明顺序排列的方向轴，program-信控程序
// 返回：方向轴划分；任一约束不满足时返回ErrConfiguration
func NewAxisGrouping(axes []Axis, program *SignalProgram) (*AxisGrouping, error) {
	if len(axes) < 2 {
		return nil, fmt.Errorf("%w: axis policy needs at least 2 axes, got %d", entity.ErrConfiguration, len(axes))
	}
	g := &AxisGrouping{
		axes:        make([]Axis, len(axes)),
		phaseToAxis: make(map[int32]int),
	}
	names := make(map[string]struct{})
	owner := make(map[string]string)
	for i, axis := range axes {
		if axis.Name == "" {
			return nil, fmt.Errorf("%w: axis %d has no name", entity.ErrConfiguration, i)
		}
		if _, ok := names[axis.Name]; ok {
			return nil, fmt.Errorf("%w: duplicated axis %q", entity.ErrConfiguration, axis.Name)
		}
		names[axis.Name] = struct{}{}
		if !program.Valid(axis.Phase) {
			return nil, fmt.Errorf(
				"%w: axis %q maps to phase %d, program has %d phases",
				entity.ErrConfiguration, axis.Name, axis.Phase, program.Len(),
			)
		}
		if other, ok := g.phaseToAxis[axis.Phase]; ok {
			return nil, fmt.Errorf(
				"%w: axes %q and %q share phase %d",
				entity.ErrConfiguration, axes[other].Name, axis.Name, axis.Phase,
			)
		}
		g.phaseToAxis[axis.Phase] = i
		if len(axis.Approaches) == 0 {
			return nil, fmt.Errorf("%w: axis %q has no approaches", entity.ErrConfiguration, axis.Name)
		}
		for _, approach := range axis.Approaches {
			if prev, ok := owner[approach]; ok && prev != axis.Name {
				return nil, fmt.Errorf(
					"%w: approach %q belongs to both axis %q and %q",
					entity.ErrConfiguration, approach, prev, axis.Name,
				)
			}
			owner[approach] = axis.Name
		}
		g.axes[i] = Axis{
			Name:       axis.Name,
			Phase:      axis.Phase,
			Approaches: lo.Uniq(axis.Approaches),
		}
	}
	return g, nil
}

// Axes 按声明顺序返回所有方向轴
func (g *AxisGrouping) Axes() []Axis {
	res := make([]Axis, len(g.axes))
	copy(res, g.axes)
	return res
}

// AxisOfPhase 查找独占该相位的方向轴下标
func (g *AxisGrouping) AxisOfPhase(phase int32) (int, bool) {
	i, ok := g.phaseToAxis[phase]
	return i, ok
}

// Groups 转换为按方向轴划分的需求分组
func (g *AxisGrouping) Groups() []DemandGroup {
	return lo.Map(g.axes, func(axis Axis, _ int) DemandGroup {
		return DemandGroup{
			Name:       axis.Name,
			Phase:      axis.Phase,
			Approaches: axis.Approaches,
		}
	})
}
