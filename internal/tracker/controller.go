package tracker

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"seatnext/internal/shared/utils/response"
)

type Controller struct {
	tracker *Tracker
}

func NewController(tracker *Tracker) *Controller {
	return &Controller{tracker: tracker}
}

// Position returns a one-off view
func (c *Controller) Position(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid entry ID", nil, err.Error())
		return
	}

	view, err := c.tracker.View(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Position retrieved", view)
}

// Stream pushes a "position" event on every venue change until the entry
// resolves or the client disconnects
func (c *Controller) Stream(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid entry ID", nil, err.Error())
		return
	}

	views, err := c.tracker.Watch(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Stream(func(w io.Writer) bool {
		view, ok := <-views
		if !ok {
			return false
		}
		ctx.SSEvent("position", view)
		return !view.Done()
	})
}
