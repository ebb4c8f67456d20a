// Package sessions é o dono do ciclo de vida das sessões de sorteio:
// criação (admin e diárias do sistema), consultas e a transição Active -> Settled.
package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/number-draw-platform/internal/domain"
	"github.com/radieske/number-draw-platform/internal/draw/repo"
	"github.com/radieske/number-draw-platform/internal/shared/clock"
)

type Store interface {
	InsertSession(ctx context.Context, s domain.Session) (bool, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context, f repo.SessionFilter) ([]domain.Session, error)
	MarkSettled(ctx context.Context, id string) (bool, error)
}

// Slot descreve uma sessão diária criada pelo sistema.
type Slot struct {
	Time string // "HH:MM"
	Name string
}

// DefaultSlots são as sessões diárias padrão.
var DefaultSlots = []Slot{
	{Time: "14:30", Name: "Afternoon Draw"},
	{Time: "19:00", Name: "Evening Draw"},
}

const DefaultCutoffLead = 5 * time.Minute

type Options struct {
	Location   *time.Location
	CutoffLead time.Duration
	Daily      []Slot
}

type Service struct {
	store Store
	clock clock.Clock
	opts  Options
}

func New(store Store, clk clock.Clock, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CutoffLead <= 0 {
		opts.CutoffLead = DefaultCutoffLead
	}
	if opts.Daily == nil {
		opts.Daily = DefaultSlots
	}
	return &Service{store: store, clock: clk, opts: opts}
}

func (s *Service) Location() *time.Location { return s.opts.Location }

// Today é a data corrente no fuso do sorteio.
func (s *Service) Today() string {
	return s.clock.Now().In(s.opts.Location).Format(domain.DateLayout)
}

type CreateRequest struct {
	Name          string
	ScheduledTime string
	Date          string // vazio = hoje
	BettingCutoff string // vazio = ScheduledTime - CutoffLead
	CreatedBy     string
}

// Create registra uma sessão nova com pool zerado.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Session, error) {
	sess, err := s.build(req)
	if err != nil {
		return domain.Session{}, err
	}
	sess.ID = uuid.NewString()
	if _, err := s.store.InsertSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func (s *Service) build(req CreateRequest) (domain.Session, error) {
	if !domain.ValidTimeOfDay(req.ScheduledTime) {
		return domain.Session{}, fmt.Errorf("%w: scheduled time %q", domain.ErrInvalidInput, req.ScheduledTime)
	}
	date := req.Date
	if date == "" {
		date = s.Today()
	}
	drawAt, err := domain.At(date, req.ScheduledTime, s.opts.Location)
	if err != nil {
		return domain.Session{}, err
	}

	cutoff := req.BettingCutoff
	if cutoff == "" {
		c := drawAt.Add(-s.opts.CutoffLead)
		if c.Format(domain.DateLayout) != date {
			// não atravessa a meia-noite: a sessão fecha no início do próprio dia
			cutoff = "00:00"
		} else {
			cutoff = c.Format(domain.TimeLayout)
		}
	}
	if !domain.ValidTimeOfDay(cutoff) {
		return domain.Session{}, fmt.Errorf("%w: betting cutoff %q", domain.ErrInvalidInput, cutoff)
	}
	if cutoff > req.ScheduledTime {
		return domain.Session{}, fmt.Errorf("%w: cutoff %s after scheduled time %s", domain.ErrInvalidInput, cutoff, req.ScheduledTime)
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = domain.CreatedByAdmin
	}
	return domain.Session{
		Name:          strings.TrimSpace(req.Name),
		ScheduledTime: req.ScheduledTime,
		Date:          date,
		BettingCutoff: cutoff,
		Pool:          decimal.Zero,
		State:         domain.SessionActive,
		CreatedBy:     createdBy,
	}, nil
}

// DailyID é o id determinístico das sessões do sistema: "session-HHMM-YYYY-MM-DD".
func DailyID(scheduledTime, date string) string {
	return "session-" + strings.ReplaceAll(scheduledTime, ":", "") + "-" + date
}

// EnsureDaily cria as sessões diárias configuradas para date (vazio = hoje).
// Reexecutar é no-op; retorna apenas as sessões criadas agora.
func (s *Service) EnsureDaily(ctx context.Context, date string) ([]domain.Session, error) {
	if date == "" {
		date = s.Today()
	}
	var created []domain.Session
	for _, slot := range s.opts.Daily {
		sess, err := s.build(CreateRequest{
			Name:          slot.Name,
			ScheduledTime: slot.Time,
			Date:          date,
			CreatedBy:     domain.CreatedBySystem,
		})
		if err != nil {
			return created, err
		}
		sess.ID = DailyID(slot.Time, date)
		ok, err := s.store.InsertSession(ctx, sess)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, sess)
		}
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Session, error) {
	return s.store.GetSession(ctx, id)
}

type Filter struct {
	Date  string
	State domain.SessionState
}

func (s *Service) List(ctx context.Context, f Filter) ([]domain.Session, error) {
	if f.State != "" && f.State != domain.SessionActive && f.State != domain.SessionSettled {
		return nil, fmt.Errorf("%w: state %q", domain.ErrInvalidInput, f.State)
	}
	return s.store.ListSessions(ctx, repo.SessionFilter{Date: f.Date, State: f.State})
}

// ListDue retorna as sessões ativas cujo horário do sorteio já passou em now.
// O storage filtra por estado e data; o instante exato é conferido aqui.
func (s *Service) ListDue(ctx context.Context, now time.Time) ([]domain.Session, error) {
	candidates, err := s.store.ListSessions(ctx, repo.SessionFilter{
		State: domain.SessionActive,
		UpTo:  now.In(s.opts.Location).Format(domain.DateLayout),
	})
	if err != nil {
		return nil, err
	}
	due := candidates[:0]
	for _, c := range candidates {
		if c.IsDue(now, s.opts.Location) {
			due = append(due, c)
		}
	}
	return due, nil
}

// MarkSettled é a única transição de estado; idempotente.
func (s *Service) MarkSettled(ctx context.Context, id string) (bool, error) {
	return s.store.MarkSettled(ctx, id)
}
