package views

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GrainArc/RoadCollab/methods"
	"github.com/GrainArc/RoadCollab/models"
	"github.com/GrainArc/RoadCollab/services"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

// RoadController 道路版本库相关接口
type RoadController struct {
	Store  *services.RoadStore
	Detect *services.DetectService
}

type updateItem struct {
	ID       string            `json:"id"`
	Geometry *geojson.Geometry `json:"geometry"`
	IsNew    bool              `json:"isNew"`
}

type updateBody struct {
	Updates    []updateItem `json:"updates"`
	EditedBy   string       `json:"edited_by"`
	EditReason string       `json:"edit_reason"`
}

// UpdateRoads 整批保存，全部成功或全部回滚
func (rc *RoadController) UpdateRoads(c *gin.Context) {
	var body updateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}
	if len(body.Updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updates"})
		return
	}

	updates := make([]services.RoadUpdate, 0, len(body.Updates))
	for _, item := range body.Updates {
		update := services.RoadUpdate{RoadID: item.ID, IsNew: item.IsNew}
		if item.Geometry != nil {
			update.Geometry = item.Geometry.Geometry()
		}
		updates = append(updates, update)
	}

	if err := rc.Store.ApplyBatch(updates, body.EditedBy, body.EditReason); err != nil {
		if errors.Is(err, services.ErrInvalidGeometry) || errors.Is(err, services.ErrInvalidRoadID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update one or more roads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RoadInfo 当前版本属性
func (rc *RoadController) RoadInfo(c *gin.Context) {
	roadID := c.Param("roadid")
	row, err := rc.Store.GetCurrent(roadID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Road not found"})
			return
		}
		if errors.Is(err, services.ErrInvalidRoadID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing roadid"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"roadid":     row.RoadID,
		"roadname":   row.RoadName,
		"munci":      row.Munci,
		"panch":      row.Panch,
		"block":      row.Block,
		"width":      row.Width,
		"surfacetyp": row.SurfaceType,
		"soiltype":   row.SoilType,
	})
}

// RoadVersions 版本历史，最新在前
func (rc *RoadController) RoadVersions(c *gin.Context) {
	roadID := c.Param("roadid")
	rows, err := rc.Store.GetHistory(roadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch version history"})
		return
	}

	versions := make([]gin.H, 0, len(rows))
	for i := range rows {
		versions = append(versions, gin.H{
			"roadid":      rows[i].RoadID,
			"valid_from":  rows[i].ValidFrom.Format("2006-01-02T15:04:05"),
			"edited_by":   rows[i].EditedBy,
			"edit_reason": rows[i].EditReason,
		})
	}
	c.JSON(http.StatusOK, versions)
}

// RoadAtTimestamp 按秒截断时间戳取历史版本
func (rc *RoadController) RoadAtTimestamp(c *gin.Context) {
	roadID := c.Param("roadid")
	rawTS := c.Param("timestamp")
	ts, err := time.Parse("2006-01-02T15:04:05", rawTS)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing timestamp"})
		return
	}

	row, err := rc.Store.GetVersionAt(roadID, ts)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	feature, err := services.RoadVersionFeature(row)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, feature)
}

// VillageWithRoads 村界及范围内当前道路
func (rc *RoadController) VillageWithRoads(c *gin.Context) {
	district := c.Query("district")
	subDist := c.Query("sub_dist")
	name := c.Query("name")
	if district == "" || subDist == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing district, sub_dist, or name in query."})
		return
	}

	village, roads, err := rc.Store.LoadVillageWithRoads(district, subDist, name)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Village not found."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch village and roads."})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"village": village,
		"roads":   roads,
	})
}

// DetectRoads 调识别服务并与现有道路按线去重
func (rc *RoadController) DetectRoads(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat/lon"})
		return
	}

	detected, err := rc.Detect.DetectRoads(c.Request.Context(), lat, lng)
	if err != nil {
		if errors.Is(err, services.ErrDetectionTimeout) {
			// 超时与普通失败分开上报
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Detection timed out after 5 minutes."})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Error detecting roads"})
		return
	}

	existing, err := rc.Store.CurrentRoads()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, methods.MergeDetected(detected, existing))
}

// GetChangeRecord 获取修改记录
func (rc *RoadController) GetChangeRecord(c *gin.Context) {
	username := c.Query("Username")
	var records []models.RoadEditRecord
	if err := rc.Store.DB.Where("username = ?", username).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch change records"})
		return
	}
	c.JSON(http.StatusOK, records)
}
