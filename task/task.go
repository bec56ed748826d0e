package task

import (
	"context"
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/clock"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/minqueue-tls/utils/config"
)

const (
	SelfName = "tls" // 本程序在模拟任务集群中的名字
)

// Context 控制会话上下文
// 功能：包含一次控制会话的所有变量和状态
// 说明：管理仿真会话、时钟、受控路口以及可选的状态查询服务
type Context struct {
	// 会话ID
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 仿真控制接口
	sim entity.ISimulation

	// 辅助程序，提供状态查询服务；未配置监听地址时为nil
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}

	// 受控路口，会话启动后创建
	junction *junction.Junction
	// 路口状态查询服务
	junctionManager *junction.JunctionManager

	// 运行时配置
	runtimeConfig *config.RuntimeConfig
}

// NewContext 创建控制会话上下文
// 参数：
//   - c: 校验后的运行时配置
//   - sim: 仿真控制接口（进程内仿真器或桥接客户端）
//
// 返回：尚未启动的会话上下文，会话ID随机生成
func NewContext(c *config.RuntimeConfig, sim entity.ISimulation) *Context {
	return &Context{
		job:            uuid.New().String(),
		clock:          clock.New(c.C.Step, c.C.Until),
		sim:            sim,
		sidecarCloseCh: make(chan struct{}, 1),
		runtimeConfig:  c,
	}
}

// Job 会话ID
func (ctx *Context) Job() string {
	return ctx.job
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

// Junction 受控路口，Run建立会话之前为nil
func (ctx *Context) Junction() *junction.Junction {
	return ctx.junction
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// scenario 由会话配置构造仿真场景参数
func (ctx *Context) scenario() entity.Scenario {
	s := ctx.runtimeConfig.All.Session
	return entity.Scenario{
		ConfigPath: s.Scenario,
		OutputDir:  s.Output,
		StepLength: ctx.runtimeConfig.C.Step,
		GUI:        s.GUI,
		ExtraArgs:  s.SimArgs,
	}
}

// junctionOptions 由运行时配置构造路口控制参数
func (ctx *Context) junctionOptions() junction.Options {
	all := ctx.runtimeConfig.All
	return junction.Options{
		PbID:   all.Status.PbID,
		Policy: all.Policy.Type,
		Axes: lo.Map(all.Policy.Axes, func(a config.Axis, _ int) trafficlight.Axis {
			return trafficlight.Axis{Name: a.Name, Phase: a.Phase, Approaches: a.Approaches}
		}),
		ApproachKind:     ctx.runtimeConfig.ApproachKind,
		MinGreen:         ctx.runtimeConfig.C.MinGreen,
		DecisionInterval: ctx.runtimeConfig.C.DecisionInterval,
	}
}

// Init 启动仿真会话并初始化受控路口
// 功能：建立会话，读取信控程序和拓扑，同步时钟，按需启动状态查询服务
// 返回：启动失败、信号灯ID无效或拓扑不合法时返回错误，此时尚未推进任何仿真时间
func (ctx *Context) Init(c context.Context) error {
	s := ctx.scenario()
	log.Infof("session %s: start scenario %s (step %vs, output %s)", ctx.job, s.ConfigPath, s.StepLength, s.OutputDir)
	if err := ctx.sim.Start(c, s); err != nil {
		return err
	}
	tls := ctx.runtimeConfig.All.Session.TLS
	j, err := junction.New(c, ctx.sim, tls, ctx.junctionOptions())
	if err != nil {
		return err
	}
	ctx.junction = j
	ctx.junctionManager = junction.NewManager(j)
	t, err := ctx.sim.Time(c)
	if err != nil {
		return err
	}
	ctx.clock.Init(t)
	if err := j.Init(c, t, ctx.runtimeConfig.C.AlignOnStart); err != nil {
		return err
	}
	log.Infof(
		"session %s: controlling %s with %s policy, %d phases, %d demand groups, min green %vs",
		ctx.job, tls, ctx.runtimeConfig.All.Policy.Type, j.Program().Len(), len(j.Groups()), ctx.runtimeConfig.C.MinGreen,
	)
	ctx.serve()
	return nil
}

// serve 配置了监听地址时启动状态查询服务
func (ctx *Context) serve() {
	status := ctx.runtimeConfig.All.Status
	if status.Listen == "" {
		return
	}
	ctx.sidecar = syncer.NewSidecar(SelfName, status.Listen, status.Syncer)
	ctx.clock.Register(ctx.sidecar)
	ctx.junctionManager.Register(ctx.sidecar)
	// sidecar协程，用于提供状态查询服务
	go func() {
		if err := ctx.sidecar.Serve(); err != nil {
			log.Errorf("status service stopped: %v", err)
		}
		ctx.sidecarCloseCh <- struct{}{}
	}()
	log.Infof("status service listening on %s", status.Listen)
}

// Close 释放仿真会话并关闭状态查询服务
// 说明：可重复调用，只在第一次生效
func (ctx *Context) Close() {
	if ctx.closed.Swap(true) {
		return
	}
	if err := ctx.sim.Close(); err != nil {
		log.Warnf("session %s: release simulation: %v", ctx.job, err)
	}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
	}
	log.Infof("session %s closed", ctx.job)
}
