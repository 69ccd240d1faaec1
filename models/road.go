package models

import (
	"time"

	"gorm.io/datatypes"
)

// RoadVersion 道路版本行，追加式存储
// 同一roadid下最多一行valid_to为空，即当前版本
type RoadVersion struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	RoadID      string `gorm:"type:varchar(255);index:idx_road_valid"`
	RoadName    string `gorm:"type:varchar(255)"`
	Munci       string `gorm:"type:varchar(255)"`
	Panch       string `gorm:"type:varchar(255)"`
	Block       string `gorm:"type:varchar(255)"`
	Width       string `gorm:"type:varchar(255)"`
	SurfaceType string `gorm:"type:varchar(255)"`
	SoilType    string `gorm:"type:varchar(255)"`
	Geom        datatypes.JSON `gorm:"type:jsonb"`
	EditedBy    string         `gorm:"type:varchar(255)"`
	EditReason  string         `gorm:"type:varchar(255)"`
	ValidFrom   time.Time      `gorm:"index:idx_road_valid"`
	ValidTo     *time.Time
}

// RoadEditRecord 编辑审计记录
type RoadEditRecord struct {
	ID         int64  `gorm:"primary_key"`
	RoadID     string `gorm:"type:varchar(255);index"`
	Username   string `gorm:"type:varchar(255)"`
	Type       string `gorm:"type:varchar(255)"`
	Date       string `gorm:"type:varchar(255)"`
	BZ         string `gorm:"type:varchar(255)"`
	OldGeojson datatypes.JSON `gorm:"type:jsonb"`
	NewGeojson datatypes.JSON `gorm:"type:jsonb"`
}

// Village 行政村边界
type Village struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"type:varchar(255);index"`
	District string `gorm:"type:varchar(255);index"`
	SubDist  string `gorm:"type:varchar(255);index"`
	Geom     datatypes.JSON `gorm:"type:jsonb"`
}

type LoginUser struct {
	ID       int64  `gorm:"primary_key"`
	Username string `gorm:"type:varchar(255)"`
	Password string `gorm:"type:varchar(255)"`
	Name     string `gorm:"type:varchar(255)"`
	Token    string `gorm:"type:varchar(255)"`
	Date     string `gorm:"type:varchar(255)"`
}
