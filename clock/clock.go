package clock

import (
	"fmt"
	"math"
	"sync"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
)

const timeEps = 1e-6

// Clock 仿真时钟
// 功能：镜像外部仿真器的当前时间，判断是否到达强制结束时刻
// 说明：时间只由控制循环写入；状态查询服务的goroutine通过读锁读取
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT  float64 // 每步时间间隔（秒）
	END float64 // 强制结束时刻（秒），不限制时为+Inf

	mu           sync.RWMutex
	t            float64 // 当前时间（秒）
	internalStep int32   // 已推进的步数
}

// New 创建时钟
// 参数：dt-步长，until-强制结束时刻，<=0表示不限制
func New(dt, until float64) *Clock {
	end := math.Inf(1)
	if until > 0 {
		end = until
	}
	return &Clock{
		DT:  dt,
		END: end,
	}
}

// Init 以仿真器的初始时间初始化时钟
func (c *Clock) Init(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
	c.internalStep = 0
}

// Advance 仿真器推进一步后同步时间
func (c *Clock) Advance(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
	c.internalStep++
}

// T 当前时间
func (c *Clock) T() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// InternalStep 已推进的步数
func (c *Clock) InternalStep() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.internalStep
}

// Reached 是否已到达强制结束时刻
func (c *Clock) Reached() bool {
	return c.T()+timeEps >= c.END
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（HH:MM:SS）
func (c *Clock) String() string {
	hour, minute, second := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%02d", hour, minute, int(second))
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 功能：将当前时间分解为小时、分钟、秒三个部分
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
// 算法说明：
// 1. 计算小时数：总秒数除以3600
// 2. 计算分钟数：剩余秒数除以60
// 3. 计算秒数：最终剩余秒数（浮点数）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	t := c.T()
	hour := int(t) / 3600
	minute := int(t) % 3600 / 60
	second := t - float64(hour*3600+minute*60)
	return hour, minute, second
}
