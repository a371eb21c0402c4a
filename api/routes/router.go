// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"seatnext/api/docs"
	"seatnext/internal/allocation"
	"seatnext/internal/app"
	"seatnext/internal/orders"
	"seatnext/internal/queue"
	"seatnext/internal/shared/middleware"
	"seatnext/internal/tracker"
)

// Router holds all route dependencies
type Router struct {
	app  *app.App
	auth gin.HandlerFunc
}

// NewRouter creates a new router instance
func NewRouter(a *app.App) *Router {
	return &Router{
		app:  a,
		auth: middleware.JWTAuthWithConfig(a.Config),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)
	r.setupDocsRoutes(engine)

	api := engine.Group(r.app.Config.GetAPIBasePath())
	{
		r.setupQueueRoutes(api)
		r.setupAllocationRoutes(api)
		r.setupOrderRoutes(api)
		r.setupTrackerRoutes(api)
	}
}

// setupHealthRoutes sets up health check, metrics and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.app.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "seatnext",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "seatnext",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.app.Config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "operational",
			"api_version":       r.app.Config.APIVersion,
			"countdowns_active": r.app.Engine.Active(),
			"kitchen_venues":    r.app.Kitchen.Venues(),
			"jobs":              r.app.Jobs.GetJobStatus(),
			"timestamp":         time.Now(),
		})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (r *Router) setupDocsRoutes(engine *gin.Engine) {
	engine.GET(docs.Path, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", docs.OpenAPI)
	})
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(docs.Path)))
}

func (r *Router) setupQueueRoutes(rg *gin.RouterGroup) {
	controller := queue.NewController(r.app.Queue, r.app.Clock)
	queue.SetupQueueRoutes(rg, controller, r.auth)
}

func (r *Router) setupAllocationRoutes(rg *gin.RouterGroup) {
	if r.app.Coordinator == nil {
		return
	}
	controller := allocation.NewController(r.app.Coordinator, r.app.Tables, r.app.Clock)
	allocation.SetupAllocationRoutes(rg, controller, r.auth)
}

func (r *Router) setupOrderRoutes(rg *gin.RouterGroup) {
	controller := orders.NewController(r.app.Orders)
	orders.SetupOrderRoutes(rg, controller, r.auth)
}

func (r *Router) setupTrackerRoutes(rg *gin.RouterGroup) {
	controller := tracker.NewController(r.app.Tracker)
	tracker.SetupTrackerRoutes(rg, controller, r.auth)
}
