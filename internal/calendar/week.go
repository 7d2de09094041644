package calendar

import (
	"strings"
	"time"
)

// DaysPerWeek is the number of weekday labels.
const DaysPerWeek = 7

var dayNames = [DaysPerWeek]string{"Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi", "Dimanche"}

var dayAbbrevs = [DaysPerWeek]string{"Lun", "Mar", "Mer", "Jeu", "Ven", "Sam", "Dim"}

// Week is the Monday..Sunday span containing a given day.
type Week struct {
	Start Date // Monday
	End   Date // Sunday
}

// Offset returns the Monday-based index of d: Monday=0 ... Sunday=6.
func Offset(d Date) int {
	return (int(d.Weekday()) + 6) % DaysPerWeek
}

// WeekOf returns the week containing today.
func WeekOf(today Date) Week {
	start := today.AddDays(-Offset(today))
	return Week{Start: start, End: start.AddDays(DaysPerWeek - 1)}
}

// WeekStart is WeekOf(today).Start.
func WeekStart(today Date) Date { return WeekOf(today).Start }

// WeekEnd is WeekOf(today).End.
func WeekEnd(today Date) Date { return WeekOf(today).End }

// Day returns the date at the given Monday-based offset within w.
func (w Week) Day(offset int) Date { return w.Start.AddDays(offset) }

// Contains reports whether d falls within w, bounds included.
func (w Week) Contains(d Date) bool { return !d.Before(w.Start) && !d.After(w.End) }

// DayName returns the full weekday label for offset.
func DayName(offset int) (string, bool) {
	if offset < 0 || offset >= DaysPerWeek {
		return "", false
	}
	return dayNames[offset], true
}

// Abbrev returns the three-letter label for offset.
func Abbrev(offset int) (string, bool) {
	if offset < 0 || offset >= DaysPerWeek {
		return "", false
	}
	return dayAbbrevs[offset], true
}

// OffsetOfAbbrev resolves a three-letter label (Lun..Dim, case-insensitive).
func OffsetOfAbbrev(abbrev string) (int, bool) {
	a := strings.TrimSpace(abbrev)
	for i, v := range dayAbbrevs {
		if strings.EqualFold(v, a) {
			return i, true
		}
	}
	return -1, false
}

// OffsetOfName resolves a full weekday label (Lundi..Dimanche, case-insensitive).
func OffsetOfName(name string) (int, bool) {
	n := strings.TrimSpace(name)
	for i, v := range dayNames {
		if strings.EqualFold(v, n) {
			return i, true
		}
	}
	return -1, false
}

// NameOfAbbrev maps Lun..Dim to Lundi..Dimanche.
func NameOfAbbrev(abbrev string) (string, bool) {
	i, ok := OffsetOfAbbrev(abbrev)
	if !ok {
		return "", false
	}
	return dayNames[i], true
}

// AbbrevOfName maps Lundi..Dimanche to Lun..Dim.
func AbbrevOfName(name string) (string, bool) {
	i, ok := OffsetOfName(name)
	if !ok {
		return "", false
	}
	return dayAbbrevs[i], true
}

// IsMonday reports whether d is a Monday.
func IsMonday(d Date) bool { return d.Weekday() == time.Monday }
