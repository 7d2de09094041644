package service

import (
	"context"
	"fmt"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/model"
	"github.com/emigresto/meal-reservation/internal/textfold"
)

// Periods lists the meal-service periods with their quota tier.
func (s *Service) Periods(ctx context.Context) ([]model.Period, error) {
	return s.periods.List(ctx)
}

// Weekdays lists the seven day labels, Monday first.
func (s *Service) Weekdays(ctx context.Context) ([]model.Weekday, error) {
	return s.weekdays.List(ctx)
}

// SlotOccupancy counts VALID reservations for a weekday and period on date.
func (s *Service) SlotOccupancy(ctx context.Context, weekdayID, periodID uint64, date calendar.Date) (int, error) {
	return s.occupancy.CountSlot(ctx, weekdayID, periodID, date)
}

// WeeklyOccupancy counts the current week's VALID reservations over every
// period whose name contains keyword, ignoring case and accents. No match
// yields 0.
func (s *Service) WeeklyOccupancy(ctx context.Context, keyword string) (int, error) {
	periods, err := s.periods.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load periods: %w", err)
	}
	ids := []uint64{}
	for _, p := range periods {
		if textfold.Contains(p.Name, keyword) {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	week := calendar.WeekOf(calendar.DateOf(s.clock()))
	return s.occupancy.CountBetween(ctx, week.Start, week.End, ids)
}

// PeriodCount is the count of one period.
type PeriodCount struct {
	PeriodID uint64
	Name     string
	Count    int
}

// DayOutlook is tomorrow's bookings seen from one weekday.
type DayOutlook struct {
	WeekdayID uint64
	Name      string
	Total     int
	ByPeriod  []PeriodCount
}

// Outlook is the kitchen dashboard: tomorrow's VALID reservations per
// weekday and period, and the current week's totals.
type Outlook struct {
	Tomorrow       calendar.Date
	Week           calendar.Week
	Days           []DayOutlook
	WeeklyTotal    int
	WeeklyByPeriod []PeriodCount
}

// Outlook builds the dashboard for the current clock.
func (s *Service) Outlook(ctx context.Context) (*Outlook, error) {
	periods, err := s.periods.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load periods: %w", err)
	}
	weekdays, err := s.weekdays.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekdays: %w", err)
	}
	today := calendar.DateOf(s.clock())
	out := &Outlook{Tomorrow: today.AddDays(1), Week: calendar.WeekOf(today)}

	cells, err := s.occupancy.CountOnDate(ctx, out.Tomorrow)
	if err != nil {
		return nil, fmt.Errorf("count tomorrow: %w", err)
	}
	type key struct{ weekday, period uint64 }
	byCell := make(map[key]int, len(cells))
	for _, c := range cells {
		byCell[key{c.WeekdayID, c.PeriodID}] = c.Count
	}
	for _, w := range weekdays {
		day := DayOutlook{WeekdayID: w.ID, Name: w.Name, ByPeriod: make([]PeriodCount, 0, len(periods))}
		for _, p := range periods {
			n := byCell[key{w.ID, p.ID}]
			day.Total += n
			day.ByPeriod = append(day.ByPeriod, PeriodCount{PeriodID: p.ID, Name: p.Name, Count: n})
		}
		out.Days = append(out.Days, day)
	}

	weekly, err := s.occupancy.CountByPeriod(ctx, out.Week.Start, out.Week.End)
	if err != nil {
		return nil, fmt.Errorf("count week: %w", err)
	}
	for _, p := range periods {
		n := weekly[p.ID]
		out.WeeklyTotal += n
		out.WeeklyByPeriod = append(out.WeeklyByPeriod, PeriodCount{PeriodID: p.ID, Name: p.Name, Count: n})
	}
	return out, nil
}
