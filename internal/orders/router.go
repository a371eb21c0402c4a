package orders

import (
	"github.com/gin-gonic/gin"

	"seatnext/internal/shared/middleware"
)

// SetupOrderRoutes configures kitchen order routes; all of them are staff
// only
func SetupOrderRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	staff := middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin)

	venues := rg.Group("/venues/:venue_id/orders")
	venues.Use(auth, staff)
	{
		venues.POST("", controller.Place)
		venues.GET("", controller.List)
	}

	orders := rg.Group("/orders")
	orders.Use(auth, staff)
	{
		orders.GET("/:id", controller.Get)
		orders.PATCH("/:id/status", controller.UpdateStatus)
		orders.POST("/:id/extend", controller.ExtendETA)
	}
}
