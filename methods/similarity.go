package methods

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultSimilarityThreshold 约30米（度）
const DefaultSimilarityThreshold = 0.0003

// SegmentsSimilar 判断两条线段是否近似重复
// 只比较端点距离，方向无关：首首+尾尾 或 首尾+尾首 都在阈值内即判定相似
func SegmentsSimilar(a, b orb.LineString, threshold float64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	startA := a[0]
	endA := a[len(a)-1]
	startB := b[0]
	endB := b[len(b)-1]

	d1 := pointDistance(startA, startB)
	d2 := pointDistance(startA, endB)
	d3 := pointDistance(endA, startB)
	d4 := pointDistance(endA, endB)

	return (d1 < threshold && d4 < threshold) || (d2 < threshold && d3 < threshold)
}

func pointDistance(p1, p2 orb.Point) float64 {
	dx := p1[0] - p2[0]
	dy := p1[1] - p2[1]
	return math.Sqrt(dx*dx + dy*dy)
}
