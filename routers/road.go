package routers

import (
	"github.com/GrainArc/RoadCollab/config"
	"github.com/GrainArc/RoadCollab/models"
	"github.com/GrainArc/RoadCollab/services"
	"github.com/GrainArc/RoadCollab/views"
	"github.com/gin-gonic/gin"
)

func RoadRouters(r *gin.Engine) {
	store := services.NewRoadStore(models.DB)
	detect := services.NewDetectService(config.DetectURL)
	RoadController := &views.RoadController{Store: store, Detect: detect}
	hub := views.NewCollabHub()

	apiRouter := r.Group("/api")
	{
		apiRouter.PUT("/geojson/update-road", RoadController.UpdateRoads)
		apiRouter.GET("/geojson/village-with-roads", RoadController.VillageWithRoads)
		apiRouter.GET("/roads/:roadid/info", RoadController.RoadInfo)
		apiRouter.GET("/roads/:roadid/versions", RoadController.RoadVersions)
		apiRouter.GET("/roads/:roadid/timestamp/:timestamp", RoadController.RoadAtTimestamp)
		apiRouter.GET("/detect-roads", RoadController.DetectRoads)
		apiRouter.GET("/GetChangeRecord", RoadController.GetChangeRecord)
	}

	r.GET("/ws", hub.Serve)
}
