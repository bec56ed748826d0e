// 外部仿真器桥接客户端
// 通过unix/tcp套接字与仿真器侧的桥接进程通信，每次调用一问一答
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"github.com/vmihailenco/msgpack/v5"
)

// Options 桥接客户端参数
type Options struct {
	Network      string        // unix|tcp
	Address      string        // 套接字路径或host:port
	CallTimeout  time.Duration // 单次调用超时
	DialRetries  int           // 连接重试次数
	DialInterval time.Duration // 连接重试间隔
}

// Client 桥接客户端，实现entity.ISimulation
// 说明：调用严格串行；连接出错后客户端进入失效状态，后续调用都返回ErrSimulationConnectivity
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	broken error
	closed bool
}

var _ entity.ISimulation = (*Client)(nil)

func New(opts Options) *Client {
	return &Client{opts: opts}
}

// dial 连接桥接进程
// 算法说明：
// 1. 按DialInterval间隔重试，最多DialRetries+1次
// 2. 每次尝试前以及等待重试间隔时检查ctx是否已取消
// 3. 全部失败后返回ErrSimulationConnectivity
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.opts.CallTimeout}
	var lastErr error
	for i := 0; i <= c.opts.DialRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: dial %s %s: %v", entity.ErrSimulationConnectivity, c.opts.Network, c.opts.Address, err)
		}
		conn, err := dialer.DialContext(ctx, c.opts.Network, c.opts.Address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Debugf("dial %s %s (attempt %d): %v", c.opts.Network, c.opts.Address, i+1, err)
		if i < c.opts.DialRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: dial %s %s: %v", entity.ErrSimulationConnectivity, c.opts.Network, c.opts.Address, ctx.Err())
			case <-time.After(c.opts.DialInterval):
			}
		}
	}
	return nil, fmt.Errorf(
		"%w: dial %s %s after %d attempts: %v",
		entity.ErrSimulationConnectivity, c.opts.Network, c.opts.Address, c.opts.DialRetries+1, lastErr,
	)
}

// call 执行一次调用
// 参数：ctx-上下文，endpoint-端点，params-请求参数，out-应答体解码目标（可为nil）
// 返回：传输层失败、超时、解码失败均返回ErrSimulationConnectivity；应答错误码按类别映射
func (c *Client) call(ctx context.Context, endpoint string, params any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s: client closed", entity.ErrSimulationConnectivity, endpoint)
	}
	if c.broken != nil {
		return fmt.Errorf("%w: %s: connection lost earlier: %v", entity.ErrSimulationConnectivity, endpoint, c.broken)
	}
	if c.conn == nil {
		return fmt.Errorf("%w: %s: session not started", entity.ErrSimulationConnectivity, endpoint)
	}
	deadline := time.Now().Add(c.opts.CallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return c.fail(endpoint, err)
	}
	if err := WriteFrame(c.conn, Request{Endpoint: endpoint, Params: params}); err != nil {
		return c.fail(endpoint, err)
	}
	var res Response
	if err := ReadFrame(c.conn, &res); err != nil {
		return c.fail(endpoint, err)
	}
	if !res.OK {
		return classify(endpoint, res)
	}
	if out != nil {
		if len(res.Body) == 0 {
			return c.fail(endpoint, errors.New("empty response body"))
		}
		if err := msgpack.Unmarshal(res.Body, out); err != nil {
			return c.fail(endpoint, fmt.Errorf("decode body: %w", err))
		}
	}
	return nil
}

// fail 标记连接失效并关闭
func (c *Client) fail(endpoint string, err error) error {
	c.broken = err
	if c.conn != nil {
		c.conn.Close()
	}
	return fmt.Errorf("%w: %s: %v", entity.ErrSimulationConnectivity, endpoint, err)
}

// classify 应答错误码映射为错误类别
func classify(endpoint string, res Response) error {
	var kind error
	switch res.Code {
	case CodeUnknownID:
		kind = entity.ErrTransientRead
	case CodeUnknownTLS:
		kind = entity.ErrConfiguration
	case CodeInvalidPhase:
		kind = entity.ErrInvalidCommand
	case CodeEnded:
		kind = entity.ErrSimulationEnded
	default:
		kind = entity.ErrSimulationConnectivity
	}
	return fmt.Errorf("%w: %s: %s", kind, endpoint, res.Error)
}

// Start 连接桥接进程并启动仿真会话
func (c *Client) Start(ctx context.Context, scenario entity.Scenario) error {
	c.mu.Lock()
	if c.conn == nil && !c.closed {
		conn, err := c.dial(ctx)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.conn = conn
		log.Infof("connected to %s %s", c.opts.Network, c.opts.Address)
	}
	c.mu.Unlock()
	return c.call(ctx, EndpointStart, startParams{
		Config:     scenario.ConfigPath,
		Output:     scenario.OutputDir,
		StepLength: scenario.StepLength,
		GUI:        scenario.GUI,
		Args:       scenario.ExtraArgs,
	}, nil)
}

func (c *Client) Step(ctx context.Context) error {
	var body stepBody
	if err := c.call(ctx, EndpointStep, nil, &body); err != nil {
		return err
	}
	if body.Ended {
		return entity.ErrSimulationEnded
	}
	return nil
}

func (c *Client) Time(ctx context.Context) (float64, error) {
	var t float64
	err := c.call(ctx, EndpointTime, nil, &t)
	return t, err
}

func (c *Client) MinExpectedNumber(ctx context.Context) (int32, error) {
	var n int32
	err := c.call(ctx, EndpointMinExpected, nil, &n)
	return n, err
}

func (c *Client) Program(ctx context.Context, tlsID string) ([]entity.SignalPhase, error) {
	var body []phaseBody
	if err := c.call(ctx, EndpointProgram, tlsParams{TLS: tlsID}, &body); err != nil {
		return nil, err
	}
	return lo.Map(body, func(p phaseBody, _ int) entity.SignalPhase {
		return entity.SignalPhase{State: p.State, Duration: p.Duration}
	}), nil
}

func (c *Client) ControlledLinks(ctx context.Context, tlsID string) ([]entity.ControlledLink, error) {
	var body []linkBody
	if err := c.call(ctx, EndpointControlledLinks, tlsParams{TLS: tlsID}, &body); err != nil {
		return nil, err
	}
	return lo.Map(body, func(l linkBody, _ int) entity.ControlledLink {
		return entity.ControlledLink{In: l.In, Out: l.Out, Via: l.Via}
	}), nil
}

func (c *Client) Phase(ctx context.Context, tlsID string) (int32, error) {
	var index int32
	err := c.call(ctx, EndpointGetPhase, tlsParams{TLS: tlsID}, &index)
	return index, err
}

func (c *Client) SetPhase(ctx context.Context, tlsID string, index int32) error {
	return c.call(ctx, EndpointSetPhase, setPhaseParams{TLS: tlsID, Index: index}, nil)
}

func (c *Client) HaltingNumber(ctx context.Context, kind entity.ApproachKind, id string) (int32, error) {
	var n int32
	err := c.call(ctx, EndpointHalting, haltingParams{Kind: kind.String(), ID: id}, &n)
	return n, err
}

// Close 结束会话并释放连接
// 说明：尽力发送stop，失败只记录日志；可重复调用
func (c *Client) Close() error {
	c.mu.Lock()
	started := c.conn != nil && c.broken == nil && !c.closed
	c.mu.Unlock()
	if started {
		if err := c.call(context.Background(), EndpointStop, nil, nil); err != nil {
			log.Warnf("stop simulation: %v", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil && c.broken == nil {
		return c.conn.Close()
	}
	return nil
}
