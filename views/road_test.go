package views

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/GrainArc/RoadCollab/models"
	"github.com/GrainArc/RoadCollab/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func newRecordRouter(t *testing.T, migrate bool) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	if migrate {
		require.NoError(t, db.AutoMigrate(&models.RoadEditRecord{}))
	}

	rc := &RoadController{Store: services.NewRoadStore(db)}
	r := gin.New()
	r.GET("/api/GetChangeRecord", rc.GetChangeRecord)
	return db, r
}

func TestGetChangeRecordByUsername(t *testing.T) {
	db, r := newRecordRouter(t, true)
	require.NoError(t, db.Create(&models.RoadEditRecord{
		RoadID:   "R1",
		Username: "alice",
		Type:     "要素修改",
	}).Error)
	require.NoError(t, db.Create(&models.RoadEditRecord{
		RoadID:   "R2",
		Username: "bob",
		Type:     "要素新增",
	}).Error)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/GetChangeRecord?Username=alice", nil))
	require.Equal(t, 200, w.Code)

	var records []models.RoadEditRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "R1", records[0].RoadID)
}

// 查询失败要以500上报，不能当空结果吞掉
func TestGetChangeRecordDBError(t *testing.T) {
	_, r := newRecordRouter(t, false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/GetChangeRecord?Username=alice", nil))
	assert.Equal(t, 500, w.Code)
}
