package tracker

import "github.com/gin-gonic/gin"

// SetupTrackerRoutes configures the position endpoints
func SetupTrackerRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	positions := rg.Group("/queue/:id/position")
	positions.Use(auth)
	{
		positions.GET("", controller.Position)
		positions.GET("/stream", controller.Stream)
	}
}
