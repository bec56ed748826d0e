package trafficlight

// AxisSelector 方向轴贪心选相
// 说明：并列时当前相位所属的轴优先，当前相位不属于任何轴时按声明顺序取靠前的轴
type AxisSelector struct {
	grouping *AxisGrouping
	groups   []DemandGroup
}

func NewAxisSelector(grouping *AxisGrouping) *AxisSelector {
	return &AxisSelector{grouping: grouping, groups: grouping.Groups()}
}

func (s *AxisSelector) Groups() []DemandGroup {
	return s.groups
}

// Select 选取排队总数不小于其他所有轴的方向轴，返回其相位
func (s *AxisSelector) Select(demand DemandSnapshot, current int32) int32 {
	if len(demand) != len(s.groups) {
		log.Panicf("axis: demand snapshot has %d entries, want %d", len(demand), len(s.groups))
	}
	best := 0
	for i := 1; i < len(demand); i++ {
		if demand[i] > demand[best] {
			best = i
		}
	}
	if cur, ok := s.grouping.AxisOfPhase(current); ok && demand[cur] >= demand[best] {
		best = cur
	}
	return s.groups[best].Phase
}
