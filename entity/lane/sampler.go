package lane

import (
	"context"
	"errors"

	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

// Sampler 需求采样器
// 功能：逐个读取进口道的停驶车辆数，汇总为各分组的排队需求
// 说明：每步重新读取，不做跨步缓存
type Sampler struct {
	sim  entity.ISimulation
	kind entity.ApproachKind
}

// NewSampler 创建需求采样器
// 参数：sim-仿真控制接口，kind-进口道度量单位（车道或道路）
func NewSampler(sim entity.ISimulation, kind entity.ApproachKind) *Sampler {
	return &Sampler{sim: sim, kind: kind}
}

func (s *Sampler) Kind() entity.ApproachKind {
	return s.kind
}

// Sum 计算一组进口道的停驶车辆总数
// 功能：逐个读取进口道停驶车辆数并求和
// 参数：ctx-上下文，ids-进口道ID列表
// 返回：停驶车辆总数；非ErrTransientRead的错误直接返回
// 说明：单个进口道读取失败（如已被移除）时按0计入并记debug日志
func (s *Sampler) Sum(ctx context.Context, ids []string) (int32, error) {
	var sum int32
	for _, id := range ids {
		n, err := s.sim.HaltingNumber(ctx, s.kind, id)
		if err != nil {
			if errors.Is(err, entity.ErrTransientRead) {
				log.Debugf("skip %s %s: %v", s.kind, id, err)
				continue
			}
			return 0, err
		}
		sum += n
	}
	return sum, nil
}

// Snapshot 计算各分组的排队需求
// 参数：ctx-上下文，groups-按分组顺序排列的进口道集合
// 返回：与groups一一对应的需求值
func (s *Sampler) Snapshot(ctx context.Context, groups [][]string) ([]int32, error) {
	res := make([]int32, len(groups))
	for i, ids := range groups {
		sum, err := s.Sum(ctx, ids)
		if err != nil {
			return nil, err
		}
		res[i] = sum
	}
	return res, nil
}
