package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MinSlotMinutes = 15
	MaxSlotMinutes = 120
)

// ScheduleConfig is a provider's recurring weekly availability: a wall-clock
// working window, the weekdays it applies to, and the slot length the window
// is partitioned into. Weekdays are ISO numbers, 1=Monday .. 7=Sunday.
type ScheduleConfig struct {
	WorkingStart string
	WorkingEnd   string
	WorkingDays  []int16
	SlotMinutes  int
}

func (c ScheduleConfig) Validate() error {
	start, err := ParseClock(c.WorkingStart)
	if err != nil {
		return fmt.Errorf("working start: %w", err)
	}
	end, err := ParseClock(c.WorkingEnd)
	if err != nil {
		return fmt.Errorf("working end: %w", err)
	}
	if end <= start {
		return errors.New("working hours end must be after start")
	}
	if c.SlotMinutes < MinSlotMinutes || c.SlotMinutes > MaxSlotMinutes {
		return fmt.Errorf("slot duration must be between %d and %d minutes", MinSlotMinutes, MaxSlotMinutes)
	}
	if len(c.WorkingDays) == 0 {
		return errors.New("at least one working day is required")
	}
	for _, wd := range c.WorkingDays {
		if wd < 1 || wd > 7 {
			return errors.New("invalid weekday")
		}
	}
	return nil
}

func (c ScheduleConfig) WorksOn(day time.Weekday) bool {
	iso := ISOWeekday(day)
	for _, wd := range c.WorkingDays {
		if wd == iso {
			return true
		}
	}
	return false
}

// GenerateSlots partitions the schedule's working window on the given date
// into consecutive slot-length intervals and returns their start labels in
// order. A trailing interval shorter than the slot length is dropped. Dates
// outside the working-day set yield an empty sequence.
func GenerateSlots(cfg ScheduleConfig, date time.Time) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.WorksOn(date.UTC().Weekday()) {
		return nil, nil
	}

	start, _ := ParseClock(cfg.WorkingStart)
	end, _ := ParseClock(cfg.WorkingEnd)

	out := make([]string, 0, (end-start)/cfg.SlotMinutes)
	for t := start; t+cfg.SlotMinutes <= end; t += cfg.SlotMinutes {
		out = append(out, ClockLabel(t))
	}
	return out, nil
}

// ParseClock parses a strict HH:MM label into minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
		}
	}
	hh := int(s[0]-'0')*10 + int(s[1]-'0')
	mm := int(s[3]-'0')*10 + int(s[4]-'0')
	if hh > 23 || mm > 59 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return hh*60 + mm, nil
}

func ClockLabel(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func ISOWeekday(d time.Weekday) int16 {
	if d == time.Sunday {
		return 7
	}
	return int16(d)
}

// Midnight truncates a time to its UTC calendar date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ProviderDayKey is the canonical key for one provider's calendar day. The
// advisory lock and the distributed slot lock both derive their keys from it.
func ProviderDayKey(providerID uuid.UUID, date time.Time) string {
	return providerID.String() + ":" + Midnight(date).Format("2006-01-02")
}
