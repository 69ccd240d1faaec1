// services/road_store.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GrainArc/RoadCollab/methods"
	"github.com/GrainArc/RoadCollab/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
)

// RoadUpdate 一次提交里的单条道路变更
type RoadUpdate struct {
	RoadID   string
	Geometry orb.Geometry
	IsNew    bool
}

// RoadStore 道路版本库，追加式存储
// ApplyBatch是唯一事务边界，读方只会看到整批前或整批后的状态
type RoadStore struct {
	DB *gorm.DB
}

func NewRoadStore(db *gorm.DB) *RoadStore {
	return &RoadStore{DB: db}
}

// ApplyBatch 整批原子提交：先校验全部几何，再在同一事务内
// 关闭各roadid的当前版本行并插入新行，任一失败整批回滚
// 锁持有关系在此层不复核，属协商边界，由会话自行遵守
func (s *RoadStore) ApplyBatch(updates []RoadUpdate, editedBy, editReason string) error {
	if len(updates) == 0 {
		return nil
	}

	// 事务外先整批校验，校验失败不触库
	normalized := make([]orb.MultiLineString, len(updates))
	for i, update := range updates {
		if update.RoadID == "" {
			return fmt.Errorf("update %d: %w", i, ErrInvalidRoadID)
		}
		mls, err := normalizeGeometry(update.Geometry)
		if err != nil {
			return fmt.Errorf("update %d (%s): %w", i, update.RoadID, err)
		}
		normalized[i] = mls
	}

	now := time.Now()
	date := now.Format("2006-01-02 15:04:05")

	return s.DB.Transaction(func(tx *gorm.DB) error {
		for i, update := range updates {
			geomJSON, err := json.Marshal(geojson.NewGeometry(normalized[i]))
			if err != nil {
				return err
			}

			var prior models.RoadVersion
			hasPrior := true
			if err := tx.Where("road_id = ? AND valid_to IS NULL", update.RoadID).
				First(&prior).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				hasPrior = false
			}

			// 先关闭旧的当前行，保证每个roadid只有一行valid_to为空
			if hasPrior {
				if err := tx.Model(&models.RoadVersion{}).
					Where("road_id = ? AND valid_to IS NULL", update.RoadID).
					Update("valid_to", now).Error; err != nil {
					return err
				}
			}

			row := models.RoadVersion{
				RoadID:     update.RoadID,
				Geom:       geomJSON,
				EditedBy:   editedBy,
				EditReason: editReason,
				ValidFrom:  now,
				ValidTo:    nil,
			}
			if hasPrior {
				row.RoadName = prior.RoadName
				row.Munci = prior.Munci
				row.Panch = prior.Panch
				row.Block = prior.Block
				row.Width = prior.Width
				row.SurfaceType = prior.SurfaceType
				row.SoilType = prior.SoilType
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}

			// 审计记录与版本行同事务落库
			recordType := "要素修改"
			if update.IsNew || !hasPrior {
				recordType = "要素新增"
			}
			record := models.RoadEditRecord{
				RoadID:     update.RoadID,
				Username:   editedBy,
				Type:       recordType,
				Date:       date,
				BZ:         editReason,
				NewGeojson: geomJSON,
			}
			if hasPrior {
				record.OldGeojson = prior.Geom
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCurrent 当前版本，即valid_to为空的那一行
func (s *RoadStore) GetCurrent(roadID string) (*models.RoadVersion, error) {
	if roadID == "" {
		return nil, ErrInvalidRoadID
	}
	var row models.RoadVersion
	err := s.DB.Where("road_id = ? AND valid_to IS NULL", roadID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetHistory 全部版本，最新在前
func (s *RoadStore) GetHistory(roadID string) ([]models.RoadVersion, error) {
	var rows []models.RoadVersion
	err := s.DB.Where("road_id = ?", roadID).Order("valid_from DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetVersionAt 按秒截断的时间戳取历史版本
// 截断比较在Go侧完成，postgres与sqlite行为一致
func (s *RoadStore) GetVersionAt(roadID string, ts time.Time) (*models.RoadVersion, error) {
	rows, err := s.GetHistory(roadID)
	if err != nil {
		return nil, err
	}
	target := ts.Truncate(time.Second)
	for i := range rows {
		if rows[i].ValidFrom.Truncate(time.Second).Equal(target) {
			return &rows[i], nil
		}
	}
	return nil, ErrNotFound
}

// LoadVillageWithRoads 取村界及其范围内的当前道路
func (s *RoadStore) LoadVillageWithRoads(district, subDist, name string) (*geojson.Feature, *geojson.FeatureCollection, error) {
	var village models.Village
	err := s.DB.Where("district = ? AND sub_dist = ? AND name = ?", district, subDist, name).
		First(&village).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	villageGeom, err := geojson.UnmarshalGeometry(village.Geom)
	if err != nil {
		return nil, nil, fmt.Errorf("village geometry: %w", err)
	}
	villageFeature := geojson.NewFeature(villageGeom.Geometry())
	villageFeature.Properties = geojson.Properties{
		"name":     village.Name,
		"district": village.District,
		"sub_dist": village.SubDist,
	}
	bound := villageFeature.Geometry.Bound()

	var rows []models.RoadVersion
	if err := s.DB.Where("valid_to IS NULL").Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	roads := geojson.NewFeatureCollection()
	for i := range rows {
		feature, err := RoadVersionFeature(&rows[i])
		if err != nil {
			continue
		}
		// 外接矩形粗判，村界附近的道路可能多收，少收不会
		if feature.Geometry != nil && bound.Intersects(feature.Geometry.Bound()) {
			roads.Append(feature)
		}
	}
	return villageFeature, roads, nil
}

// CurrentRoads 全部道路的当前版本
func (s *RoadStore) CurrentRoads() (*geojson.FeatureCollection, error) {
	var rows []models.RoadVersion
	if err := s.DB.Where("valid_to IS NULL").Find(&rows).Error; err != nil {
		return nil, err
	}
	roads := geojson.NewFeatureCollection()
	for i := range rows {
		feature, err := RoadVersionFeature(&rows[i])
		if err != nil {
			continue
		}
		roads.Append(feature)
	}
	return roads, nil
}

// RoadVersionFeature 版本行转GeoJSON要素
func RoadVersionFeature(row *models.RoadVersion) (*geojson.Feature, error) {
	geom, err := geojson.UnmarshalGeometry(row.Geom)
	if err != nil {
		return nil, err
	}
	feature := geojson.NewFeature(geom.Geometry())
	feature.Properties = geojson.Properties{
		"roadid":      row.RoadID,
		"roadname":    row.RoadName,
		"surfacetyp":  row.SurfaceType,
		"width":       row.Width,
		"edited_by":   row.EditedBy,
		"edit_reason": row.EditReason,
		"valid_from":  row.ValidFrom.Format("2006-01-02T15:04:05"),
	}
	return feature, nil
}

// normalizeGeometry 校验并统一为MultiLineString
// 空行会被剔除，允许零线几何（要素在可编辑集中视为删除，但历史不灭）
func normalizeGeometry(g orb.Geometry) (orb.MultiLineString, error) {
	if g == nil {
		return nil, ErrInvalidGeometry
	}
	mls, ok := methods.NormalizeToMultiLine(g)
	if !ok {
		return nil, ErrInvalidGeometry
	}
	cleaned := make(orb.MultiLineString, 0, len(mls))
	for _, line := range mls {
		if len(line) == 0 {
			continue
		}
		cleaned = append(cleaned, line.Clone())
	}
	return cleaned, nil
}
