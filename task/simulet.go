package task

import (
	"context"
	"errors"
	"flag"

	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// StopReason 控制循环正常结束的原因
type StopReason string

const (
	StopUntil      StopReason = "until"       // 到达强制结束时刻
	StopNoVehicles StopReason = "no_vehicles" // 网络中没有车辆且没有待出发车辆
	StopEnded      StopReason = "ended"       // 仿真器自行结束
	StopCanceled   StopReason = "canceled"    // 调用方取消
	StopSyncer     StopReason = "syncer"      // syncer要求结束
)

// prepare 推进阶段，每步执行一次
// 功能：推进仿真一步并同步时钟
// 返回：仿真已结束时返回ErrSimulationEnded
func (ctx *Context) prepare(c context.Context) error {
	if err := ctx.sim.Step(c); err != nil {
		return err
	}
	t, err := ctx.sim.Time(c)
	if err != nil {
		return err
	}
	ctx.clock.Advance(t)
	step := ctx.clock.InternalStep()
	log.Debugf("step %d complete, t=%v", step, t)
	if *heartBeatInterval > 0 && step%int32(*heartBeatInterval) == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		status := ctx.junction.Status()
		log.Infof(
			"STEP: %d(%d:%d:%.2f) phase %d, switches %d",
			step, hour, minute, second, status.Phase, status.Switches,
		)
	}
	return nil
}

// shouldStop 检查结束条件
// 算法说明：
// 1. 到达强制结束时刻
// 2. 网络中的车辆数加待出发车辆数不大于0
func (ctx *Context) shouldStop(c context.Context) (StopReason, bool, error) {
	if ctx.clock.Reached() {
		return StopUntil, true, nil
	}
	n, err := ctx.sim.MinExpectedNumber(c)
	if err != nil {
		return "", false, err
	}
	if n <= 0 {
		return StopNoVehicles, true, nil
	}
	return "", false, nil
}

// update 控制阶段，每步执行一次
// 说明：采样需求、选相并在需要时下发切换
func (ctx *Context) update(c context.Context) error {
	_, err := ctx.junction.Tick(c, ctx.clock.T())
	return err
}

// Run 运行控制会话直到结束
// 功能：启动会话后循环执行 推进→检查结束条件→控制，结束后总是释放会话
// 参数：c-上下文，取消后在下一个步边界结束
// 返回：正常结束的原因；启动失败、连接中断或下发无效相位时返回错误
// 算法说明：
// 1. 初始化：启动仿真会话，创建受控路口，同步时钟
// 2. 每步先检查取消，再推进仿真；仿真器报告结束时正常退出
// 3. 到达强制结束时刻或没有剩余车辆时正常退出
// 4. 否则执行一步控制；启用syncer时与其他服务同步步进，任何方式退出时都发送结束步
func (ctx *Context) Run(c context.Context) (reason StopReason, err error) {
	defer ctx.Close()
	if err := ctx.Init(c); err != nil {
		return "", err
	}
	if ctx.sidecar != nil {
		// init syncer
		ctx.sidecar.Step(false)
	}
	ready := false // 本步是否已调用NotifyStepReady
	defer func() {
		if ctx.sidecar == nil || reason == StopSyncer {
			return
		}
		// 最后一步：通知syncer本服务结束
		if !ready {
			ctx.sidecar.NotifyStepReady()
		}
		ctx.sidecar.Step(true)
	}()
	defer func() {
		if err == nil {
			log.Infof(
				"session %s: stopped (%s) at t=%v after %d steps, %d switches",
				ctx.job, reason, ctx.clock.T(), ctx.clock.InternalStep(), len(ctx.junction.History()),
			)
		}
	}()
	for {
		if c.Err() != nil {
			return StopCanceled, nil
		}
		if err := ctx.prepare(c); err != nil {
			if errors.Is(err, entity.ErrSimulationEnded) {
				return StopEnded, nil
			}
			return "", err
		}
		if reason, stop, err := ctx.shouldStop(c); err != nil || stop {
			return reason, err
		}
		if ctx.sidecar != nil {
			ctx.sidecar.NotifyStepReady()
			ready = true
		}
		if err := ctx.update(c); err != nil {
			return "", err
		}
		if ctx.sidecar != nil {
			ready = false
			if ctx.sidecar.Step(false) {
				return StopSyncer, nil
			}
		}
	}
}
