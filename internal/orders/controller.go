package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"seatnext/internal/shared/utils/response"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{service: service, validator: validator.New()}
}

func (c *Controller) Place(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if !c.bind(ctx, &req) {
		return
	}

	order, err := c.service.Place(ctx.Request.Context(), venueID, &req)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Order placed", order, nil)
}

func (c *Controller) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	order, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Order retrieved", order)
}

// List supports ?status=placed,in_prep
func (c *Controller) List(ctx *gin.Context) {
	venueID, ok := parseID(ctx, "venue_id")
	if !ok {
		return
	}

	var statuses []Status
	if raw := ctx.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s := Status(strings.TrimSpace(part))
			if !s.IsValid() {
				response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid status filter", nil, part)
				return
			}
			statuses = append(statuses, s)
		}
	}

	list, err := c.service.ListVenue(ctx.Request.Context(), venueID, statuses...)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Orders retrieved", list)
}

func (c *Controller) UpdateStatus(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !c.bind(ctx, &req) {
		return
	}

	order, err := c.service.UpdateStatus(ctx.Request.Context(), id, req.Status)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Order updated", order)
}

func (c *Controller) ExtendETA(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	var req ExtendETARequest
	if !c.bind(ctx, &req) {
		return
	}

	order, err := c.service.ExtendETA(ctx.Request.Context(), id, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		response.RespondError(ctx, err)
		return
	}

	response.RespondOK(ctx, "Order ETA extended", order)
}

func (c *Controller) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}
	if err := c.validator.Struct(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return false
	}
	return true
}

func parseID(ctx *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid "+param, nil, nil)
		return uuid.Nil, false
	}
	return id, true
}
