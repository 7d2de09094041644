package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/service"
)

// CatalogHandler serves the read-only slot catalog and occupancy counts.
type CatalogHandler struct {
	Svc *service.Service
	Log logrus.FieldLogger
}

// NewCatalogHandler panics when svc is nil.
func NewCatalogHandler(svc *service.Service, log logrus.FieldLogger) *CatalogHandler {
	if svc == nil {
		panic("nil service passed to NewCatalogHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogHandler{Svc: svc, Log: log}
}

type periodResponse struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Price uint32 `json:"price"`
	Tier  string `json:"tier"`
}

type weekdayResponse struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Abbrev string `json:"abbrev"`
	Offset int    `json:"offset"`
}

type periodCountResponse struct {
	PeriodID uint64 `json:"period_id"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

type dayOutlookResponse struct {
	WeekdayID uint64                `json:"weekday_id"`
	Name      string                `json:"name"`
	Total     int                   `json:"total"`
	ByPeriod  []periodCountResponse `json:"by_period"`
}

// Periods handles GET /v1/periods.
func (h *CatalogHandler) Periods(c echo.Context) error {
	periods, err := h.Svc.Periods(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, periodResponse{ID: p.ID, Name: p.Name, Price: p.Price, Tier: string(p.Tier)})
	}
	return c.JSON(http.StatusOK, out)
}

// Weekdays handles GET /v1/weekdays.
func (h *CatalogHandler) Weekdays(c echo.Context) error {
	weekdays, err := h.Svc.Weekdays(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := make([]weekdayResponse, 0, len(weekdays))
	for _, w := range weekdays {
		abbrev, _ := calendar.Abbrev(w.Offset)
		out = append(out, weekdayResponse{ID: w.ID, Name: w.Name, Abbrev: abbrev, Offset: w.Offset})
	}
	return c.JSON(http.StatusOK, out)
}

// Occupancy handles GET /v1/catalog/occupancy?weekday_id=&period_id=&date=.
func (h *CatalogHandler) Occupancy(c echo.Context) error {
	weekdayID, err1 := strconv.ParseUint(c.QueryParam("weekday_id"), 10, 64)
	periodID, err2 := strconv.ParseUint(c.QueryParam("period_id"), 10, 64)
	date, err3 := calendar.ParseDate(c.QueryParam("date"))
	if err1 != nil || err2 != nil || err3 != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "weekday_id, period_id and date (YYYY-MM-DD) are required"})
	}
	n, err := h.Svc.SlotOccupancy(c.Request().Context(), weekdayID, periodID, date)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"weekday_id": weekdayID,
		"period_id":  periodID,
		"date":       date.String(),
		"count":      n,
	})
}

// Weekly handles GET /v1/catalog/weekly?period=<keyword>.
func (h *CatalogHandler) Weekly(c echo.Context) error {
	keyword := c.QueryParam("period")
	if keyword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "period is required"})
	}
	n, err := h.Svc.WeeklyOccupancy(c.Request().Context(), keyword)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"period": keyword, "count": n})
}

// Outlook handles GET /v1/catalog/outlook.
func (h *CatalogHandler) Outlook(c echo.Context) error {
	o, err := h.Svc.Outlook(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	days := make([]dayOutlookResponse, 0, len(o.Days))
	for _, d := range o.Days {
		days = append(days, dayOutlookResponse{
			WeekdayID: d.WeekdayID,
			Name:      d.Name,
			Total:     d.Total,
			ByPeriod:  toPeriodCounts(d.ByPeriod),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"tomorrow":         o.Tomorrow.String(),
		"week_start":       o.Week.Start.String(),
		"week_end":         o.Week.End.String(),
		"days":             days,
		"weekly_total":     o.WeeklyTotal,
		"weekly_by_period": toPeriodCounts(o.WeeklyByPeriod),
	})
}

func toPeriodCounts(in []service.PeriodCount) []periodCountResponse {
	out := make([]periodCountResponse, 0, len(in))
	for _, p := range in {
		out = append(out, periodCountResponse{PeriodID: p.PeriodID, Name: p.Name, Count: p.Count})
	}
	return out
}
