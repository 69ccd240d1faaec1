package main

import (
	"log"

	"github.com/GrainArc/RoadCollab/config"
	"github.com/GrainArc/RoadCollab/models"
	"github.com/GrainArc/RoadCollab/routers"
	"github.com/gin-gonic/gin"
)

func main() {
	models.InitDB()

	r := gin.Default()
	routers.RoadRouters(r)

	log.Printf("Listening on %s", config.MainRouter)
	if err := r.Run(config.MainRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
