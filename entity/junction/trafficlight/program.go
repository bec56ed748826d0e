package trafficlight

import (
	"fmt"

	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

// Phase 信控程序中的一个相位
// 说明：加载后不可变，Duration仅作展示，控制器自行决定相位时长
type Phase struct {
	Index    int32
	State    string
	Duration float64
}

// HasRightOfWay 判断相位状态字符是否表示放行
// 说明：'G'为保护绿灯，'g'为许可绿灯（需让行），其他字符均不放行
func HasRightOfWay(c byte) bool {
	return c == 'G' || c == 'g'
}

// SignalProgram 路口的信控程序
// 功能：按顺序保存所有相位，提供相位合法性检查
type SignalProgram struct {
	phases      []Phase
	stateLength int
}

// NewSignalProgram 根据仿真器给出的相位列表创建信控程序
// 功能：检查相位数量与状态串长度一致性
// 返回：信控程序；相位为空或状态串长度不一致时返回ErrConfiguration
func NewSignalProgram(phases []entity.SignalPhase) (*SignalProgram, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: signal program has no phases", entity.ErrConfiguration)
	}
	p := &SignalProgram{
		phases:      make([]Phase, len(phases)),
		stateLength: len(phases[0].State),
	}
	for i, ph := range phases {
		if len(ph.State) != p.stateLength {
			return nil, fmt.Errorf(
				"%w: phase %d state %q has length %d, phase 0 has %d",
				entity.ErrConfiguration, i, ph.State, len(ph.State), p.stateLength,
			)
		}
		p.phases[i] = Phase{Index: int32(i), State: ph.State, Duration: ph.Duration}
	}
	return p, nil
}

// Len 相位数量
func (p *SignalProgram) Len() int {
	return len(p.phases)
}

// StateLength 相位状态串长度（受控连接数）
func (p *SignalProgram) StateLength() int {
	return p.stateLength
}

// Phases 返回所有相位的副本
func (p *SignalProgram) Phases() []Phase {
	res := make([]Phase, len(p.phases))
	copy(res, p.phases)
	return res
}

// Phase 按索引获取相位
func (p *SignalProgram) Phase(index int32) (Phase, bool) {
	if !p.Valid(index) {
		return Phase{}, false
	}
	return p.phases[index], true
}

// Valid 相位索引是否在程序范围内
func (p *SignalProgram) Valid(index int32) bool {
	return index >= 0 && int(index) < len(p.phases)
}
