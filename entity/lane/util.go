package lane

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// EdgeOf 车道ID转道路ID
// 说明：车道ID形如"<edge>_<index>"，去掉最后一个下划线及其后的数字；不符合该形式时原样返回
func EdgeOf(laneID string) string {
	i := strings.LastIndexByte(laneID, '_')
	if i <= 0 || i == len(laneID)-1 {
		return laneID
	}
	if _, err := strconv.Atoi(laneID[i+1:]); err != nil {
		return laneID
	}
	return laneID[:i]
}

// EdgesOf 车道ID列表转为去重排序后的道路ID列表
func EdgesOf(laneIDs []string) []string {
	edges := lo.Uniq(lo.Map(laneIDs, func(id string, _ int) string {
		return EdgeOf(id)
	}))
	sort.Strings(edges)
	return edges
}
