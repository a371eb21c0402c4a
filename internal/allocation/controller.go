package allocation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"seatnext/internal/queue"
	"seatnext/internal/shared/apperr"
	"seatnext/internal/shared/middleware"
	"seatnext/internal/shared/utils/response"
	"seatnext/pkg/clock"
)

type Controller struct {
	coordinator *Coordinator
	repo        Repository
	clock       clock.Clock
	validator   *validator.Validate
}

func NewController(coordinator *Coordinator, repo Repository, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Controller{
		coordinator: coordinator,
		repo:        repo,
		clock:       clk,
		validator:   validator.New(),
	}
}

func (c *Controller) Request(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var req AllocationRequest
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

	offer, err := c.coordinator.Propose(ctx.Request.Context(), venueID, ProposeRequest{
		PatronID:        patronID,
		PartySize:       req.PartySize,
		ReservationTime: req.ReservationTime,
		ETA:             req.ETA,
	})
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Allocation checked", offer)
}

func (c *Controller) GetProposal(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	p, err := c.coordinator.GetProposal(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Proposal retrieved", p)
}

func (c *Controller) Confirm(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var patronID *uuid.UUID
	if uid, ok := middleware.UserID(ctx); ok {
		patronID = &uid
	}

	entries, err := c.coordinator.Confirm(ctx.Request.Context(), id, patronID)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	now := c.clock.Now()
	out := make([]queue.EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, queue.ToResponse(&entries[i], now))
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Tables booked", out, nil)
}

func (c *Controller) Discard(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	if err := c.coordinator.Discard(ctx.Request.Context(), id); err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Proposal discarded", nil)
}

func (c *Controller) ListTables(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	tables, err := c.repo.ListTables(ctx.Request.Context(), venueID)
	if err != nil {
		response.RespondError(ctx, apperr.External("list_tables", err))
		return
	}

	response.RespondOK(ctx, "Tables retrieved", tables)
}

func (c *Controller) CreateTable(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var req CreateTableRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	table := &VenueTable{VenueID: venueID, Label: req.Label, Capacity: req.Capacity, Active: true}
	if err := c.repo.CreateTable(ctx.Request.Context(), table); err != nil {
		response.RespondError(ctx, apperr.External("create_table", err))
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Table created", table, nil)
}

func parseID(ctx *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid "+param, nil, nil)
		return uuid.Nil, false
	}
	return id, true
}
