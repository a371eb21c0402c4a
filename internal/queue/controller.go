package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"seatnext/internal/shared/middleware"
	"seatnext/internal/shared/utils/response"
	"seatnext/pkg/clock"
)

type Controller struct {
	service   Service
	clock     clock.Clock
	validator *validator.Validate
}

func NewController(service Service, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{
		service:   service,
		clock:     clk,
		validator: validator.New(),
	}
}

func (c *Controller) Join(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var req JoinQueueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	var patronID *uuid.UUID
	if id, ok := middleware.UserID(ctx); ok {
		patronID = &id
	}

	entry, err := c.service.Join(ctx.Request.Context(), venueID, patronID, &req)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Joined the queue", ToResponse(entry, c.clock.Now()), nil)
}

func (c *Controller) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	entry, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Queue entry retrieved", c.present(ctx, entry))
}

func (c *Controller) ListWaiting(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	entries, err := c.service.ListWaiting(ctx.Request.Context(), venueID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	now := c.clock.Now()
	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, ToResponse(&entries[i], now))
	}
	response.RespondOK(ctx, "Waiting entries retrieved", out)
}

func (c *Controller) ListVenue(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var statuses []Status
	for _, s := range ctx.QueryArray("status") {
		st := Status(s)
		if !st.IsValid() {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid status filter", nil, s)
			return
		}
		statuses = append(statuses, st)
	}

	entries, err := c.service.ListVenue(ctx.Request.Context(), venueID, statuses...)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	now := c.clock.Now()
	out := make([]StaffEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, ToStaffResponse(&entries[i], now))
	}
	response.RespondOK(ctx, "Queue retrieved", out)
}

func (c *Controller) MarkReady(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req MarkReadyRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}

	entry, err := c.service.MarkReady(ctx.Request.Context(), id, req.Deadline)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Party notified, table is being held", c.present(ctx, entry))
}

func (c *Controller) ConfirmArrival(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	result, err := c.service.ConfirmArrival(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	if result.Outcome == OutcomeRaceLost {
		response.RespondJSON(ctx, "error", http.StatusConflict, "Your table is no longer being held", c.present(ctx, result.Entry), nil)
		return
	}
	response.RespondOK(ctx, "Arrival confirmed, staff will seat you shortly", c.present(ctx, result.Entry))
}

func (c *Controller) Seat(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	entry, err := c.service.MerchantSeats(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Party seated", c.present(ctx, entry))
}

func (c *Controller) Cancel(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req CancelRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
		if err := c.validator.Struct(&req); err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
			return
		}
	}

	actor := ActorPatron
	if middleware.IsVenueSide(ctx) {
		actor = ActorVenue
	}

	cancelled, err := c.service.Cancel(ctx.Request.Context(), id, req.Reason, actor)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	out := make([]EntryResponse, 0, len(cancelled))
	for i := range cancelled {
		out = append(out, ToResponse(&cancelled[i], c.clock.Now()))
	}
	response.RespondOK(ctx, "Booking cancelled", out)
}

func (c *Controller) Extend(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	entry, err := c.service.GrantExtension(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Extra time granted", c.present(ctx, entry))
}

func (c *Controller) Sweep(ctx *gin.Context) {
	processed, err := c.service.ProcessExpiredReady(ctx.Request.Context())
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Sweep complete", gin.H{"expired": processed})
}

// present hides the stored no_show status from patrons
func (c *Controller) present(ctx *gin.Context, entry *QueueEntry) interface{} {
	if middleware.IsVenueSide(ctx) {
		return ToStaffResponse(entry, c.clock.Now())
	}
	return ToResponse(entry, c.clock.Now())
}

func parseID(ctx *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid "+param, nil, nil)
		return uuid.Nil, false
	}
	return id, true
}
