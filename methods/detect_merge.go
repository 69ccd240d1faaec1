package methods

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MergeDetected 将识别结果与现有道路去重合并
// 去重按线段而非按要素：候选要素只要有一条线不与任何现有线段相似就保留
// 保留的候选分配临时roadid并统一为MultiLineString
func MergeDetected(candidates, existing *geojson.FeatureCollection) *geojson.FeatureCollection {
	merged := geojson.NewFeatureCollection()
	if candidates == nil {
		return merged
	}

	existingLines := FlattenLines(existing)

	for _, candidate := range candidates.Features {
		if candidate == nil || candidate.Geometry == nil {
			continue
		}
		mls, ok := NormalizeToMultiLine(candidate.Geometry)
		if !ok {
			continue
		}

		novel := false
		for _, line := range mls {
			if !lineMatchesAny(line, existingLines) {
				novel = true
				break
			}
		}
		if !novel {
			continue
		}

		kept := CloneFeature(candidate)
		kept.Geometry = mls.Clone()
		SetRoadID(kept, fmt.Sprintf("new_%s", uuid.New().String()))
		merged.Append(kept)
	}

	return merged
}

func lineMatchesAny(line orb.LineString, existing []orb.LineString) bool {
	for _, other := range existing {
		if SegmentsSimilar(line, other, DefaultSimilarityThreshold) {
			return true
		}
	}
	return false
}
