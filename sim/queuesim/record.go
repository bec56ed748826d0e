package queuesim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/minqueue-tls/entity"
	"gopkg.in/yaml.v2"
)

const (
	EdgeDataFile = "edgedata.yaml"
	TripInfoFile = "tripinfo.yaml"
)

// EdgeData 单个进口道路在整个会话中的聚合统计
type EdgeData struct {
	ID             string  `yaml:"id"`
	SampledSeconds float64 `yaml:"sampled_seconds"` // 车辆停留总时长（车·秒）
	Entered        int     `yaml:"entered"`         // 进入的车辆数
	Left           int     `yaml:"left"`            // 驶离的车辆数
	WaitingTime    float64 `yaml:"waiting_time"`    // 停驶总时长（秒）
	TimeLoss       float64 `yaml:"time_loss"`       // 总延误（秒）
	Speed          float64 `yaml:"speed"`           // 平均速度（米/秒）
}

// TripInfo 单车出行记录
type TripInfo struct {
	ID          string  `yaml:"id"`
	VType       string  `yaml:"vtype"`
	Lane        string  `yaml:"lane"`
	Depart      float64 `yaml:"depart"`
	Arrival     float64 `yaml:"arrival"`
	Duration    float64 `yaml:"duration"`
	WaitingTime float64 `yaml:"waiting_time"`
	TimeLoss    float64 `yaml:"time_loss"`
}

// Records 会话结束时输出的记录
type Records struct {
	Begin float64    `yaml:"begin"`
	End   float64    `yaml:"end"`
	Edges []EdgeData `yaml:"edges,omitempty"`
	Trips []TripInfo `yaml:"trips,omitempty"`
}

// collect 汇总所有车道的统计，按道路聚合
func collect(lanes []*queueLane) (edges []EdgeData, trips []TripInfo) {
	byEdge := make(map[string]*laneStats)
	for _, l := range lanes {
		s, ok := byEdge[l.spec.Edge]
		if !ok {
			s = &laneStats{}
			byEdge[l.spec.Edge] = s
		}
		s.sampledSeconds += l.stats.sampledSeconds
		s.entered += l.stats.entered
		s.left += l.stats.left
		s.waitingTime += l.stats.waitingTime
		s.timeLoss += l.stats.timeLoss
		s.distance += l.stats.distance
		trips = append(trips, l.trips...)
	}
	ids := lo.Keys(byEdge)
	sort.Strings(ids)
	edges = lo.Map(ids, func(id string, _ int) EdgeData {
		s := byEdge[id]
		d := EdgeData{
			ID:             id,
			SampledSeconds: s.sampledSeconds,
			Entered:        s.entered,
			Left:           s.left,
			WaitingTime:    s.waitingTime,
			TimeLoss:       s.timeLoss,
		}
		if s.sampledSeconds > 0 {
			d.Speed = s.distance / s.sampledSeconds
		}
		return d
	})
	sort.SliceStable(trips, func(i, j int) bool {
		if trips[i].Arrival != trips[j].Arrival {
			return trips[i].Arrival < trips[j].Arrival
		}
		return trips[i].ID < trips[j].ID
	})
	return edges, trips
}

// writeRecords 将道路统计和出行记录写入输出目录
func writeRecords(dir string, begin, end float64, edges []EdgeData, trips []TripInfo) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", entity.ErrConfiguration, err)
	}
	write := func(name string, r Records) error {
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, name), data, 0o644)
	}
	if err := write(EdgeDataFile, Records{Begin: begin, End: end, Edges: edges}); err != nil {
		return err
	}
	return write(TripInfoFile, Records{Begin: begin, End: end, Trips: trips})
}

// ReadRecords 读取输出的记录文件
func ReadRecords(path string) (*Records, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Records
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
