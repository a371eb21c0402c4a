package queue

import (
	"github.com/gin-gonic/gin"

	"seatnext/internal/shared/middleware"
)

// SetupQueueRoutes configures queue entry routes. auth must populate the
// caller's role.
func SetupQueueRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	venues := rg.Group("/venues/:venue_id/queue")
	{
		venues.GET("/waiting", controller.ListWaiting)

		authenticated := venues.Group("")
		authenticated.Use(auth)
		{
			authenticated.POST("", middleware.RequireRoles(middleware.RolePatron, middleware.RoleStaff, middleware.RoleAdmin), controller.Join)
			authenticated.GET("", middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin), controller.ListVenue)
		}
	}

	entries := rg.Group("/queue")
	entries.Use(auth)
	{
		entries.GET("/:id", controller.Get)
		entries.POST("/:id/cancel", controller.Cancel)

		patron := entries.Group("")
		patron.Use(middleware.RequireRoles(middleware.RolePatron))
		{
			patron.POST("/:id/arrive", controller.ConfirmArrival)
			patron.POST("/:id/extend", controller.Extend)
		}

		staff := entries.Group("")
		staff.Use(middleware.RequireRoles(middleware.RoleStaff, middleware.RoleAdmin))
		{
			staff.POST("/:id/ready", controller.MarkReady)
			staff.POST("/:id/seat", controller.Seat)
		}
	}

	admin := rg.Group("/admin/queue")
	admin.Use(auth, middleware.RequireRoles(middleware.RoleAdmin))
	{
		admin.POST("/sweep", controller.Sweep)
	}
}
