// 随机数引擎，包装了golang.org/x/exp/rand，提供车辆生成所需的分布
package randengine

import (
	"flag"
	"math"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎（非线程安全）
// 说明：每条车道持有独立的引擎，不在goroutine之间共享
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 说明：种子偏移量允许在不修改场景的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按给定权重生成随机下标
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，每个元素表示对应下标的权重，总和必须大于0
// 返回：随机生成的下标（0到len(weight)-1）
// 算法说明：
// 1. 在[0, 总权重)范围内生成随机数
// 2. 累积权重直到超过随机数，返回该下标
func (e *Engine) DiscreteDistribution(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	log.Panicf("DiscreteDistribution: sum: %f random: %f", sum, random)
	return -1
}

// Exponential 按给定到达率生成指数分布的间隔
// 参数：rate-到达率（次/秒）
// 返回：间隔（秒）；rate不大于0时为+Inf
func (e *Engine) Exponential(rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return e.ExpFloat64() / rate
}
