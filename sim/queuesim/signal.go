package queuesim

import (
	"git.fiblab.net/general/common/v2/mathutil"
)

// signal 一个信号灯的运行时状态
// 说明：fixed_time的信号灯按信控程序的时长自动轮转相位，其余信号灯保持相位直到收到切换指令
type signal struct {
	spec       JunctionSpec
	phase      int32
	totalT     float64 // 当前相位的总时长，不自动轮转时为INF
	remainingT float64 // 当前相位的剩余时长，不自动轮转时为INF
}

func newSignal(spec JunctionSpec) *signal {
	s := &signal{spec: spec}
	s.set(spec.InitialPhase)
	return s
}

// set 切换到指定相位并重新开始计时
func (s *signal) set(index int32) {
	s.phase = index
	if !s.spec.FixedTime {
		s.totalT, s.remainingT = mathutil.INF, mathutil.INF
		return
	}
	s.totalT = s.spec.Program[index].Duration
	s.remainingT = s.totalT
}

// state 当前相位的状态串，没有信控程序时为空
func (s *signal) state() string {
	if len(s.spec.Program) == 0 {
		return ""
	}
	return s.spec.Program[s.phase].State
}

// update 推进计时，剩余时长耗尽时切换到下一个时长大于0的相位
// 说明：要求程序总时长大于0，由场景校验保证
func (s *signal) update(dt float64) {
	if !s.spec.FixedTime {
		return
	}
	s.remainingT -= dt
	if s.remainingT > timeEps {
		return
	}
	n := int32(len(s.spec.Program))
	for {
		s.phase = (s.phase + 1) % n
		s.remainingT += s.spec.Program[s.phase].Duration
		if s.remainingT > timeEps {
			s.totalT = s.spec.Program[s.phase].Duration
			break
		}
	}
}
