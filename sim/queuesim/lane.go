package queuesim

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/minqueue-tls/utils/randengine"
)

// vehicle 车辆
type vehicle struct {
	id       string
	vtype    string
	depart   float64 // 进入车道的时刻
	stopLine float64 // 以自由流速度到达停车线的时刻
}

// laneStats 车道累计统计
type laneStats struct {
	sampledSeconds float64 // 车辆在车道上停留的总时长（车·秒）
	entered        int     // 进入车道的车辆数
	left           int     // 驶离车道的车辆数
	waitingTime    float64 // 停驶总时长（秒）
	timeLoss       float64 // 相对自由流的总延误（秒）
	distance       float64 // 驶离车辆行驶的总距离（米）
}

// queueLane 点排队车道
// 说明：moving为尚未到达停车线的车辆（按到达停车线时刻排序），queue为停车线前排队的车辆
type queueLane struct {
	spec     LaneSpec
	freeTime float64 // 自由流行驶时间

	arrivals []vehicle // 预先生成的到达序列（按depart排序）
	next     int       // 下一个尚未进入车道的到达

	moving []vehicle
	queue  []vehicle
	credit float64 // 本相位累积的放行能力（辆）
	rate   float64 // 本步放行率（辆/秒），由信号灯状态决定

	stats laneStats
	trips []TripInfo
}

// newQueueLane 创建车道并预生成到达
// 算法说明：
// 1. 初始排队车辆在开始时刻已位于停车线
// 2. 到达间隔服从指数分布（泊松到达），到demandEnd为止
// 3. 车型按权重离散分布抽取
func newQueueLane(spec LaneSpec, begin, demandEnd float64, generator *randengine.Engine) *queueLane {
	l := &queueLane{
		spec:     spec,
		freeTime: spec.Length / spec.MaxSpeed,
		arrivals: make([]vehicle, 0),
		moving:   make([]vehicle, 0),
		queue:    make([]vehicle, 0),
		trips:    make([]TripInfo, 0),
	}
	names, weights := vtypeNames(spec.VTypes)
	n := 0
	newVehicle := func(depart, stopLine float64) vehicle {
		v := vehicle{
			id:       fmt.Sprintf("%s.%d", spec.ID, n),
			vtype:    names[generator.DiscreteDistribution(weights)],
			depart:   depart,
			stopLine: stopLine,
		}
		n++
		return v
	}
	for range spec.InitialQueue {
		// 视为已行驶完整条车道
		l.queue = append(l.queue, newVehicle(begin-l.freeTime, begin))
		l.stats.entered++
	}
	if spec.ArrivalRate > 0 {
		for t := begin + generator.Exponential(spec.ArrivalRate); t < demandEnd; t += generator.Exponential(spec.ArrivalRate) {
			l.arrivals = append(l.arrivals, newVehicle(t, t+l.freeTime))
		}
	}
	return l
}

// update 推进一步
// 参数：t-本步结束时刻，dt-步长
// 算法说明：
// 1. 统计本步开始时车上车辆的停留时长和停驶时长
// 2. 将本步内到达的车辆放入车道，将到达停车线的车辆加入排队
// 3. 按放行率累积放行能力，从队首驶离整数辆车；不放行或排队清空时能力清零
func (l *queueLane) update(t, dt float64) {
	l.stats.sampledSeconds += float64(len(l.moving)+len(l.queue)) * dt
	l.stats.waitingTime += float64(len(l.queue)) * dt

	for l.next < len(l.arrivals) && l.arrivals[l.next].depart <= t {
		l.moving = append(l.moving, l.arrivals[l.next])
		l.next++
		l.stats.entered++
	}
	i := 0
	for ; i < len(l.moving) && l.moving[i].stopLine <= t; i++ {
		l.queue = append(l.queue, l.moving[i])
	}
	l.moving = l.moving[i:]

	if l.rate <= 0 || len(l.queue) == 0 {
		l.credit = 0
		return
	}
	l.credit += l.rate * dt
	n := min(int(math.Floor(l.credit)), len(l.queue))
	for _, v := range l.queue[:n] {
		l.leave(v, t)
	}
	l.queue = l.queue[n:]
	l.credit -= float64(n)
	if len(l.queue) == 0 {
		l.credit = 0
	}
}

// leave 车辆驶离车道，生成出行记录
func (l *queueLane) leave(v vehicle, t float64) {
	duration := t - v.depart
	waiting := math.Max(0, t-v.stopLine)
	timeLoss := math.Max(0, duration-l.freeTime)
	l.stats.left++
	l.stats.timeLoss += timeLoss
	l.stats.distance += l.spec.Length
	l.trips = append(l.trips, TripInfo{
		ID:          v.id,
		VType:       v.vtype,
		Lane:        l.spec.ID,
		Depart:      v.depart,
		Arrival:     t,
		Duration:    duration,
		WaitingTime: waiting,
		TimeLoss:    timeLoss,
	})
}

// halting 停车线前的排队车辆数
func (l *queueLane) halting() int32 {
	return int32(len(l.queue))
}

// remaining 车道上的车辆数加尚未到达的车辆数
func (l *queueLane) remaining() int32 {
	return int32(len(l.moving) + len(l.queue) + len(l.arrivals) - l.next)
}
