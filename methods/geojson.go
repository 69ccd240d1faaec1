package methods

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NormalizeToMultiLine 将几何统一为MultiLineString表达
// 单线几何视为单线集合，非线状几何返回false
func NormalizeToMultiLine(g orb.Geometry) (orb.MultiLineString, bool) {
	switch geom := g.(type) {
	case orb.LineString:
		return orb.MultiLineString{geom}, true
	case orb.MultiLineString:
		return geom, true
	default:
		return nil, false
	}
}

// FlattenLines 将要素集合展开为线段序列
func FlattenLines(fc *geojson.FeatureCollection) []orb.LineString {
	var lines []orb.LineString
	if fc == nil {
		return lines
	}
	for _, feature := range fc.Features {
		if feature == nil || feature.Geometry == nil {
			continue
		}
		mls, ok := NormalizeToMultiLine(feature.Geometry)
		if !ok {
			continue
		}
		for _, line := range mls {
			lines = append(lines, line)
		}
	}
	return lines
}

// RoadID 从要素属性中取roadid
func RoadID(f *geojson.Feature) string {
	if f == nil || f.Properties == nil {
		return ""
	}
	id, _ := f.Properties["roadid"].(string)
	return id
}

// SetRoadID 写入roadid属性
func SetRoadID(f *geojson.Feature, id string) {
	if f.Properties == nil {
		f.Properties = make(geojson.Properties)
	}
	f.Properties["roadid"] = id
}
