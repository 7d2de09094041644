package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/middleware"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/service"
)

// ReservationHandler serves booking, listing and cancellation. Every route
// runs behind JWTAuth.
type ReservationHandler struct {
	Svc *service.Service
	Log logrus.FieldLogger
}

// NewReservationHandler panics when svc is nil.
func NewReservationHandler(svc *service.Service, log logrus.FieldLogger) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReservationHandler{Svc: svc, Log: log}
}

type createReservationRequest struct {
	Date          string  `json:"date"`
	WeekdayID     uint64  `json:"weekday_id"`
	PeriodID      uint64  `json:"period_id"`
	Time          string  `json:"time"`
	BeneficiaryID *uint64 `json:"beneficiary_id"`
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorsBody(fieldError{Reason: string(service.ReasonInvalid), Message: "invalid request body"}))
	}

	req := service.CreateRequest{
		WeekdayID:     body.WeekdayID,
		PeriodID:      body.PeriodID,
		Time:          body.Time,
		BeneficiaryID: body.BeneficiaryID,
	}
	if body.Date != "" {
		d, err := calendar.ParseDate(body.Date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorsBody(fieldError{
				Field:   "date",
				Reason:  string(service.ReasonInvalid),
				Message: "date must be YYYY-MM-DD",
			}))
		}
		req.Date = d
	}

	res, err := h.Svc.Create(c.Request().Context(), p, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(*res))
}

// List handles GET /v1/reservations?status=&page=&page_size=.
func (h *ReservationHandler) List(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var q service.ListQuery
	if s := c.QueryParam("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be VALID, CANCELLED or EXPIRED"})
		}
		q.Status = &st
	}
	for name, dst := range map[string]*int{"page": &q.Page, "page_size": &q.PageSize} {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || (name == "page" && n > service.MaxPage) {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + name})
			}
			*dst = n
		}
	}

	views, err := h.Svc.List(c.Request().Context(), p, q)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]reservationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toViewResponse(v))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// Get handles GET /v1/reservations/:id. Reservations the caller may not
// see are reported as missing.
func (h *ReservationHandler) Get(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	v, err := h.Svc.Get(c.Request().Context(), p, id)
	if errors.Is(err, repository.ErrForbidden) {
		err = repository.ErrNotFound
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toViewResponse(*v))
}

// Cancel handles DELETE /v1/reservations/:id. Repeating it is harmless.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.Svc.Cancel(c.Request().Context(), p, id); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type batchSuccessResponse struct {
	ReservationID uint64 `json:"reservation_id"`
	Period        string `json:"period"`
	Day           string `json:"day"`
	Date          string `json:"date"`
	Message       string `json:"message"`
}

type batchFailureResponse struct {
	Period string `json:"period"`
	Day    string `json:"day"`
	Error  string `json:"error"`
}

// CancelBatch handles POST /v1/reservations/cancel-batch. The body maps
// period names to day abbreviations; items are processed in body order.
// The response is 200 when at least one reservation was cancelled and 400
// otherwise, with every outcome listed either way.
func (h *ReservationHandler) CancelBatch(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return unauthorized(c)
	}
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	items, err := decodeBatch(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if len(items) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no periods given"})
	}

	result, err := h.Svc.BatchCancel(c.Request().Context(), p, items)
	if err != nil {
		return writeError(c, h.Log, err)
	}

	successes := make([]batchSuccessResponse, 0, len(result.Successes))
	for _, s := range result.Successes {
		successes = append(successes, batchSuccessResponse{
			ReservationID: s.ReservationID,
			Period:        s.Period,
			Day:           s.Day,
			Date:          s.Date.String(),
			Message:       s.Message,
		})
	}
	failures := make([]batchFailureResponse, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, batchFailureResponse{Period: f.Period, Day: f.Day, Error: f.Error})
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusBadRequest
	}
	return c.JSON(status, echo.Map{"successes": successes, "failures": failures})
}

// decodeBatch reads {"<period>": ["Lun", ...], ...} keeping key order,
// which a map cannot.
func decodeBatch(raw []byte) ([]service.BatchItem, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.New("invalid request body")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("body must be an object of period to days")
	}

	var items []service.BatchItem
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.New("invalid request body")
		}
		period := tok.(string)
		var days []string
		if err := dec.Decode(&days); err != nil {
			return nil, fmt.Errorf("days of %q must be a list of day abbreviations", period)
		}
		items = append(items, service.BatchItem{Period: period, Days: days})
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.New("invalid request body")
	}
	return items, nil
}
