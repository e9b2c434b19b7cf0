package manager

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"meteo/logger"
)

var ErrNoProvider = errors.New("weather provider not configured")

func New(api Weather) *Service {
	return &Service{
		api:    api,
		logger: logger.NewNop(),
		now:    time.Now,
	}
}

// Service turns a city name into an Outcome using one provider.
type Service struct {
	api    Weather
	state  *State
	logger *logger.Logger
	now    func() time.Time
}

func (s *Service) SetLogger(l *logger.Logger) {
	s.logger = l.Named("manager")
}

// SetState attaches the outcome slot updated by Dispatch.
func (s *Service) SetState(state *State) {
	s.state = state
}

// Query runs one query synchronously. It never retries.
func (s *Service) Query(ctx context.Context, city string) Outcome {
	return s.run(ctx, uuid.NewString(), city)
}

func (s *Service) run(ctx context.Context, id, city string) Outcome {
	outcome := Outcome{ID: id, City: city}

	log := s.logger.With(logger.String("query_id", outcome.ID), logger.String("city", city))
	start := s.now()

	if s.api == nil {
		outcome.Failure = NewFailure(InvalidInput, ErrNoProvider)
		outcome.At = s.now()
		log.Error("query without provider")
		return outcome
	}

	report, err := s.api.Get(ctx, Query{City: city})
	outcome.At = s.now()

	if err != nil {
		outcome.Failure = AsFailure(err)
		log.Info("query failed",
			logger.String("kind", outcome.Failure.Kind.String()),
			logger.Error(err),
			logger.Duration("took", outcome.At.Sub(start)))
		return outcome
	}

	outcome.Report = &report
	log.Info("query succeeded",
		logger.String("description", report.Description),
		logger.Int("temperature_c", report.TemperatureCelsius),
		logger.Duration("took", outcome.At.Sub(start)))

	return outcome
}

// Dispatch starts a query in the background and applies its outcome to the
// attached State, returning the outcome ID straight away.
//
// Dispatches are not serialized: when two queries overlap, whichever
// completes last is the one left in State, regardless of issue order. An
// issued query cannot be cancelled.
func (s *Service) Dispatch(ctx context.Context, city string) string {
	id := uuid.NewString()
	ctx = context.WithoutCancel(ctx)

	go func() {
		outcome := s.run(ctx, id, city)

		if s.state == nil {
			return
		}
		if !s.state.Apply(outcome) {
			s.logger.Warn("state closed, outcome discarded", logger.String("query_id", id))
		}
	}()

	return id
}
