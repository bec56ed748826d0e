package task

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity/lane"
)

// Inspection 信号灯的静态信息
type Inspection struct {
	TLS      string
	Phases   []entity.SignalPhase
	Inbound  []string // 受控连接的进口道路（去重排序）
	Outbound []string // 受控连接的出口道路（去重排序）
}

// Inspect 读取信号灯的信控程序和进出口道路后释放会话，不推进仿真
// 说明：用于在运行控制之前确认相位序号和方向轴划分
func (ctx *Context) Inspect(c context.Context) (*Inspection, error) {
	defer ctx.Close()
	if err := ctx.sim.Start(c, ctx.scenario()); err != nil {
		return nil, err
	}
	tls := ctx.runtimeConfig.All.Session.TLS
	phases, err := ctx.sim.Program(c, tls)
	if err != nil {
		return nil, err
	}
	links, err := ctx.sim.ControlledLinks(c, tls)
	if err != nil {
		return nil, err
	}
	in := lo.FilterMap(links, func(l entity.ControlledLink, _ int) (string, bool) {
		return l.In, l.In != ""
	})
	out := lo.FilterMap(links, func(l entity.ControlledLink, _ int) (string, bool) {
		return l.Out, l.Out != ""
	})
	return &Inspection{
		TLS:      tls,
		Phases:   phases,
		Inbound:  lane.EdgesOf(in),
		Outbound: lane.EdgesOf(out),
	}, nil
}

// Print 输出可读的信号灯信息
func (i *Inspection) Print(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "traffic light %s: %d phases\n", i.TLS, len(i.Phases))
	for idx, p := range i.Phases {
		fmt.Fprintf(&b, "  phase %d: %s (%vs)\n", idx, p.State, p.Duration)
	}
	fmt.Fprintf(&b, "inbound edges: %s\n", strings.Join(i.Inbound, " "))
	fmt.Fprintf(&b, "outbound edges: %s\n", strings.Join(i.Outbound, " "))
	_, err := io.WriteString(w, b.String())
	return err
}
