// Package schedule turns the configured show days into bookable slots.
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Day is one show day with its ordered slot start times.
type Day struct {
	Name  string
	Date  time.Time
	Slots []string
}

// DateString returns the calendar date as YYYY-MM-DD.
func (d Day) DateString() string {
	return d.Date.Format(dateLayout)
}

type Schedule struct {
	loc         *time.Location
	slotMinutes int
	days        []Day
	byName      map[string]int
}

func New(cfg config.EventConfig) (*Schedule, error) {
	if err := config.ValidateEvent(cfg); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	slotMinutes := cfg.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = models.DefaultSlotMinutes
	}

	s := &Schedule{
		loc:         loc,
		slotMinutes: slotMinutes,
		byName:      make(map[string]int, len(cfg.Days)),
	}
	for _, d := range cfg.Days {
		date, err := time.ParseInLocation(dateLayout, d.Date, loc)
		if err != nil {
			return nil, err
		}
		slots := d.Slots
		if len(slots) == 0 {
			slots, err = generateSlots(d.Start, d.End, slotMinutes)
			if err != nil {
				return nil, fmt.Errorf("day %s: %w", d.Name, err)
			}
		} else {
			slots = append([]string(nil), slots...)
			sort.Strings(slots)
		}
		s.days = append(s.days, Day{Name: NormalizeDay(d.Name), Date: date, Slots: slots})
	}
	sort.SliceStable(s.days, func(i, j int) bool { return s.days[i].Date.Before(s.days[j].Date) })
	for i, d := range s.days {
		s.byName[d.Name] = i
	}
	return s, nil
}

func generateSlots(start, end string, step int) ([]string, error) {
	from, err := time.Parse(timeLayout, start)
	if err != nil {
		return nil, err
	}
	to, err := time.Parse(timeLayout, end)
	if err != nil {
		return nil, err
	}
	var slots []string
	// the last slot must finish by the closing time
	for t := from; !t.Add(time.Duration(step) * time.Minute).After(to); t = t.Add(time.Duration(step) * time.Minute) {
		slots = append(slots, t.Format(timeLayout))
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no %d-minute slot fits between %s and %s", step, start, end)
	}
	return slots, nil
}

// NormalizeDay makes day names case-insensitive.
func NormalizeDay(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Schedule) Location() *time.Location { return s.loc }

// SlotDuration is the length of one appointment.
func (s *Schedule) SlotDuration() time.Duration {
	return time.Duration(s.slotMinutes) * time.Minute
}

// Days returns the show days in date order.
func (s *Schedule) Days() []Day {
	return append([]Day(nil), s.days...)
}

func (s *Schedule) Day(name string) (Day, bool) {
	i, ok := s.byName[NormalizeDay(name)]
	if !ok {
		return Day{}, false
	}
	return s.days[i], true
}

// HasSlot reports whether hhmm is a slot start on the named day.
func (s *Schedule) HasSlot(day, hhmm string) bool {
	d, ok := s.Day(day)
	if !ok {
		return false
	}
	for _, slot := range d.Slots {
		if slot == hhmm {
			return true
		}
	}
	return false
}

// Slot resolves a day and start time to an absolute slot.
func (s *Schedule) Slot(day, hhmm string) (models.Slot, error) {
	d, ok := s.Day(day)
	if !ok {
		return models.Slot{}, fmt.Errorf("unknown day %q", day)
	}
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return models.Slot{}, fmt.Errorf("invalid time %q", hhmm)
	}
	date := time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), t.Hour(), t.Minute(), 0, 0, s.loc)
	return models.Slot{Day: d.Name, Time: hhmm, Date: date}, nil
}

// Slots lists every bookable slot in chronological order.
func (s *Schedule) Slots() []models.Slot {
	var out []models.Slot
	for _, d := range s.days {
		for _, hhmm := range d.Slots {
			slot, err := s.Slot(d.Name, hhmm)
			if err != nil {
				continue
			}
			out = append(out, slot)
		}
	}
	return out
}

// IsTomorrow reports whether t falls on the calendar day after now in the
// event timezone.
func (s *Schedule) IsTomorrow(t, now time.Time) bool {
	tomorrow := now.In(s.loc).AddDate(0, 0, 1)
	local := t.In(s.loc)
	return local.Year() == tomorrow.Year() && local.YearDay() == tomorrow.YearDay()
}
