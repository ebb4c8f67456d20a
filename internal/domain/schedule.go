package domain

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// At combina uma data "YYYY-MM-DD" e um horário "HH:MM" em um instante no fuso loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date/time %q %q", ErrInvalidInput, date, clock)
	}
	return t, nil
}

// DrawAt é o instante do sorteio; só ele dispara a liquidação.
func (s Session) DrawAt(loc *time.Location) (time.Time, error) {
	return At(s.Date, s.ScheduledTime, loc)
}

// CutoffAt é o instante a partir do qual novas apostas são recusadas.
func (s Session) CutoffAt(loc *time.Location) (time.Time, error) {
	return At(s.Date, s.BettingCutoff, loc)
}

// IsDue informa se a sessão está ativa e já passou do horário do sorteio.
func (s Session) IsDue(now time.Time, loc *time.Location) bool {
	if s.State != SessionActive {
		return false
	}
	at, err := s.DrawAt(loc)
	if err != nil {
		return false
	}
	return !now.Before(at)
}

// ValidTimeOfDay valida um horário "HH:MM".
func ValidTimeOfDay(v string) bool {
	_, err := time.Parse(TimeLayout, v)
	return err == nil && len(v) == len(TimeLayout)
}
