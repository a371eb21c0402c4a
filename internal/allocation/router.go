package allocation

import (
	"github.com/gin-gonic/gin"

	"seatnext/internal/shared/middleware"
)

func SetupAllocationRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	venues := rg.Group("/venues/:venue_id")
	venues.Use(auth)
	{
		venues.POST("/allocations", middleware.RequireRoles(middleware.RolePatron, middleware.RoleStaff, middleware.RoleAdmin), controller.Request)
		venues.GET("/tables", middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin), controller.ListTables)
		venues.POST("/tables", middleware.RequireRoles(middleware.RoleAdmin), controller.CreateTable)
	}

	proposals := rg.Group("/proposals")
	proposals.Use(auth)
	{
		proposals.GET("/:id", controller.GetProposal)
		proposals.POST("/:id/confirm", controller.Confirm)
		proposals.DELETE("/:id", controller.Discard)
	}
}
