// 提供排队最小化的贪心选相策略
// 每次决策计算所有相位放行进口道的排队总数，选取排队最多的相位
package trafficlight

import (
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/container"
)

// Selector 选相策略
// 功能：根据本步需求快照和当前相位给出目标相位，不判断是否允许切换
// 说明：必须是无副作用的纯函数，相同输入总是得到相同结果
type Selector interface {
	Groups() []DemandGroup                             // 需求分组
	Select(demand DemandSnapshot, current int32) int32 // 目标相位
}

// GreedySelector 全局贪心选相
type GreedySelector struct {
	groups []DemandGroup
}

// NewGreedySelector 根据相位放行进口道集合创建全局贪心选相器
// 说明：进口道可能同时属于多个相位，各相位分别计入，不做去重
func NewGreedySelector(lg LinkGroup) *GreedySelector {
	return &GreedySelector{groups: lg.Groups()}
}

func (s *GreedySelector) Groups() []DemandGroup {
	return s.groups
}

// Select 选取排队最多的相位
// 算法说明：
// 1. 按排队数建立大顶堆（优先级取负）
// 2. 弹出所有与最大值并列的相位
// 3. 当前相位在并列集合中则保持当前相位，否则取索引最小者
func (s *GreedySelector) Select(demand DemandSnapshot, current int32) int32 {
	if len(demand) != len(s.groups) {
		log.Panicf("greedy: demand snapshot has %d entries, want %d", len(demand), len(s.groups))
	}
	queueHeap := container.NewPriorityQueue[int32]()
	for i, q := range demand {
		queueHeap.Push(s.groups[i].Phase, -float64(q))
	}
	queueHeap.Heapify()
	best, maxQueue := queueHeap.HeapPop()
	for queueHeap.Len() > 0 {
		phase, q := queueHeap.HeapPop()
		if q != maxQueue {
			break
		}
		if best == current {
			continue
		}
		if phase == current || phase < best {
			best = phase
		}
	}
	return best
}
