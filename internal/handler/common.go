package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/repository"
	"github.com/emigresto/meal-reservation/internal/service"
)

// fieldError is the wire form of a validation or policy failure.
type fieldError struct {
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func errorsBody(errs ...fieldError) echo.Map { return echo.Map{"errors": errs} }

// unauthorized answers requests that reached a /v1 handler without a
// principal. JWTAuth normally rejects them first.
func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps service and repository errors onto HTTP statuses.
// Anything unclassified is logged and answered with 500.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
	var verrs service.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]fieldError, 0, len(verrs))
		for _, f := range verrs {
			out = append(out, fieldError{Field: f.Field, Reason: string(f.Reason), Message: f.Message})
		}
		return c.JSON(http.StatusBadRequest, errorsBody(out...))
	}

	var rej *service.Rejection
	if errors.As(err, &rej) {
		status := http.StatusBadRequest
		if errors.Is(rej, repository.ErrConflict) {
			status = http.StatusConflict
		}
		return c.JSON(status, errorsBody(fieldError{Reason: string(rej.Reason), Message: rej.Message}))
	}

	switch {
	case errors.Is(err, repository.ErrQuotaExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no tickets left for this meal period"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	log.WithError(err).WithFields(logrus.Fields{
		"method": c.Request().Method,
		"path":   c.Path(),
	}).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

type reservationResponse struct {
	ID              uint64    `json:"id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Status          string    `json:"status"`
	InitiatorID     uint64    `json:"initiator_id"`
	BeneficiaryID   uint64    `json:"beneficiary_id"`
	WeekdayID       uint64    `json:"weekday_id"`
	PeriodID        uint64    `json:"period_id"`
	WeekdayName     string    `json:"weekday,omitempty"`
	PeriodName      string    `json:"period,omitempty"`
	BeneficiaryName string    `json:"beneficiary,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toReservationResponse(r model.Reservation) reservationResponse {
	return reservationResponse{
		ID:            r.ID,
		Date:          r.Date.String(),
		Time:          r.Time,
		Status:        string(r.Status),
		InitiatorID:   r.InitiatorID,
		BeneficiaryID: r.BeneficiaryID,
		WeekdayID:     r.WeekdayID,
		PeriodID:      r.PeriodID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toViewResponse(v model.ReservationView) reservationResponse {
	out := toReservationResponse(v.Reservation)
	out.WeekdayName = v.WeekdayName
	out.PeriodName = v.PeriodName
	out.BeneficiaryName = v.BeneficiaryName
	return out
}
