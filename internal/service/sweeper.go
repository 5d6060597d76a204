package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/metrics"
	"github.com/its333/NoStressPlanner-sub000/internal/repository"
)

const (
	sweepBatchSize = 100
	sweepTimeout   = 30 * time.Second
)

// Sweeper fails overdue votes that nobody is looking at. Entry-point checks
// already cover every event that still gets traffic; the sweep picks up the
// quiet ones whose deadline passes unobserved, so FAILED shows up within one
// interval instead of on the next visit.
type Sweeper struct {
	events  repository.EventRepository
	service EventService
	log     *logger.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron
}

func NewSweeper(events repository.EventRepository, svc EventService, log *logger.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		events:  events,
		service: svc,
		log:     log,
		metrics: m,
		cron:    cron.New(),
	}
}

// Start schedules the sweep at the given interval.
func (s *Sweeper) Start(interval time.Duration) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.run); err != nil {
		return fmt.Errorf("failed to schedule the deadline sweep: %w", err)
	}
	s.cron.Start()
	s.log.WithField("interval", interval.String()).Info("deadline sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.log.WithError(err).Error("deadline sweep failed")
	}
}

// RunOnce processes one batch of VOTE-phase events whose deadline has
// passed. Quorum-reached events advance instead of failing; the shared
// transition rule decides, not the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	due, err := s.events.ListDueVote(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list overdue events: %w", err)
	}

	swept := 0
	for _, event := range due {
		from := event.Phase
		updated, err := s.service.ApplyDueTransitions(ctx, event)
		if err != nil {
			s.log.WithEvent(event.Token).WithError(err).Warn("failed to sweep event")
			continue
		}
		if updated.Phase != from {
			swept++
		}
	}

	s.metrics.SweepRuns.Inc()
	if swept > 0 {
		s.log.WithField("events", swept).Info("deadline sweep applied transitions")
	}
	return nil
}
