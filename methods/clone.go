package methods

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CloneFeature 结构化深拷贝，历史快照不允许共享底层数据
func CloneFeature(f *geojson.Feature) *geojson.Feature {
	if f == nil {
		return nil
	}
	copied := geojson.NewFeature(cloneGeometry(f.Geometry))
	copied.ID = f.ID
	copied.Type = f.Type
	if f.BBox != nil {
		copied.BBox = append(geojson.BBox(nil), f.BBox...)
	}
	copied.Properties = cloneProperties(f.Properties)
	return copied
}

// CloneCollection 深拷贝要素集合
func CloneCollection(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return nil
	}
	copied := geojson.NewFeatureCollection()
	for _, feature := range fc.Features {
		copied.Append(CloneFeature(feature))
	}
	return copied
}

func cloneGeometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return orb.Clone(g)
}

func cloneProperties(props geojson.Properties) geojson.Properties {
	if props == nil {
		return nil
	}
	copied := make(geojson.Properties, len(props))
	for key, value := range props {
		copied[key] = cloneValue(value)
	}
	return copied
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(v))
		for key, item := range v {
			copied[key] = cloneValue(item)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(v))
		for i, item := range v {
			copied[i] = cloneValue(item)
		}
		return copied
	default:
		return v
	}
}
