package service

import (
	"context"
	"sort"
	"time"

	"github.com/its333/NoStressPlanner-sub000/internal/apperr"
	"github.com/its333/NoStressPlanner-sub000/internal/availability"
	"github.com/its333/NoStressPlanner-sub000/internal/cache"
	"github.com/its333/NoStressPlanner-sub000/internal/identity"
	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/metrics"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
	"github.com/its333/NoStressPlanner-sub000/internal/notifier"
	"github.com/its333/NoStressPlanner-sub000/internal/phase"
	"github.com/its333/NoStressPlanner-sub000/internal/repository"
)

// EventService coordinates every read and mutation of a scheduling event:
// phase progression, attendance votes, day blocking, slot claims and the
// host's controls. Every mutation invalidates the event's cached views and
// emits a realtime notification.
type EventService interface {
	GetEventView(ctx context.Context, token string, creds identity.Credentials) (*models.EventView, error)
	ApplyVote(ctx context.Context, token string, creds identity.Credentials, in bool) (*models.EventView, error)
	ApplyBlocks(ctx context.Context, token string, creds identity.Credentials, days []time.Time, anonymous bool) (*models.EventView, error)
	Join(ctx context.Context, token string, creds identity.Credentials, slug string) (string, *models.EventView, error)
	SwitchName(ctx context.Context, token string, creds identity.Credentials, slug string) (string, *models.EventView, error)
	Leave(ctx context.Context, token string, creds identity.Credentials) (*models.EventView, error)
	TransitionPhase(ctx context.Context, token string, creds identity.Credentials, target string) (*models.EventView, error)
	SetFinalDate(ctx context.Context, token string, creds identity.Credentials, day *time.Time) (*models.EventView, error)
	ToggleResultsVisibility(ctx context.Context, token string, creds identity.Credentials, visible bool) (*models.EventView, error)
	// ApplyDueTransitions applies the automatic phase rule for one event and
	// returns the, possibly advanced, current state. Idempotent; called at
	// the top of every entry point and by the deadline sweep.
	ApplyDueTransitions(ctx context.Context, event *models.Event) (*models.Event, error)
	// Invalidate drops every cached view of the event across all viewer
	// fingerprints.
	Invalidate(ctx context.Context, token, operation string) error
}

type eventService struct {
	events   repository.EventRepository
	people   repository.PersonRepository
	sessions repository.SessionRepository
	votes    repository.VoteRepository
	blocks   repository.BlockRepository
	resolver identity.Resolver
	cache    cache.ViewCache
	notifier notifier.Notifier
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEventService(
	events repository.EventRepository,
	people repository.PersonRepository,
	sessions repository.SessionRepository,
	votes repository.VoteRepository,
	blocks repository.BlockRepository,
	resolver identity.Resolver,
	viewCache cache.ViewCache,
	notify notifier.Notifier,
	log *logger.Logger,
	m *metrics.Metrics,
) EventService {
	return &eventService{
		events:   events,
		people:   people,
		sessions: sessions,
		votes:    votes,
		blocks:   blocks,
		resolver: resolver,
		cache:    viewCache,
		notifier: notify,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

func (s *eventService) loadEvent(ctx context.Context, token string) (*models.Event, error) {
	event, err := s.events.GetByToken(ctx, token)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load event")
	}
	if event == nil {
		return nil, apperr.NotFound("event not found")
	}
	return event, nil
}

func (s *eventService) GetEventView(ctx context.Context, token string, creds identity.Credentials) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	viewer, session := s.resolver.ResolveViewer(ctx, event, creds)
	host := s.resolver.ResolveHost(ctx, event, creds)
	fingerprint := identity.Fingerprint(session, viewer, host)

	if view, ok := s.cache.GetView(ctx, token, fingerprint); ok {
		return view, nil
	}

	view, err := s.buildView(ctx, event, viewer, host)
	if err != nil {
		return nil, err
	}

	s.cache.SetView(ctx, token, fingerprint, view)
	return view, nil
}

func (s *eventService) ApplyVote(ctx context.Context, token string, creds identity.Credentials, in bool) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	viewer, _ := s.resolver.ResolveViewer(ctx, event, creds)
	if viewer == nil {
		return nil, apperr.Unauthorized("join the event before voting")
	}
	if event.Phase != models.PhaseVote {
		return nil, apperr.Conflict("voting is closed in phase %s", event.Phase)
	}

	if err := s.votes.Upsert(ctx, event.ID, viewer.ID, in); err != nil {
		return nil, apperr.Internal(err, "failed to save vote")
	}

	// this very vote may complete the quorum
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateEvent(ctx, event.Token, "vote")
	s.notifier.Notify(ctx, event.Token, "vote", map[string]interface{}{
		"person": viewer.Slug,
		"in":     in,
		"phase":  event.Phase,
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) ApplyBlocks(ctx context.Context, token string, creds identity.Credentials, days []time.Time, anonymous bool) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	viewer, _ := s.resolver.ResolveViewer(ctx, event, creds)
	if viewer == nil {
		return nil, apperr.Unauthorized("join the event before blocking days")
	}
	if event.Phase != models.PhasePickDays {
		return nil, apperr.Conflict("days can only be blocked in phase %s", models.PhasePickDays)
	}

	normalized, err := normalizeDays(days, event.StartDate, event.EndDate)
	if err != nil {
		return nil, err
	}

	if err := s.blocks.ReplaceForPerson(ctx, event.ID, viewer.ID, normalized, anonymous); err != nil {
		return nil, apperr.Internal(err, "failed to save day blocks")
	}

	s.cache.InvalidateEvent(ctx, event.Token, "saveBlocks")
	s.notifier.Notify(ctx, event.Token, "blocks", map[string]interface{}{
		"person": viewer.Slug,
		"days":   len(normalized),
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) Join(ctx context.Context, token string, creds identity.Credentials, slug string) (string, *models.EventView, error) {
	return s.claimSlot(ctx, token, creds, slug, "join", false)
}

func (s *eventService) SwitchName(ctx context.Context, token string, creds identity.Credentials, slug string) (string, *models.EventView, error) {
	return s.claimSlot(ctx, token, creds, slug, "switchName", true)
}

// claimSlot binds the caller to a name slot: it deactivates whatever the
// caller held before plus any of the caller's own claims on the slot, then
// issues a fresh session token. A slot actively held by somebody else is
// never stolen.
func (s *eventService) claimSlot(ctx context.Context, token string, creds identity.Credentials, slug, operation string, requireExisting bool) (string, *models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return "", nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return "", nil, err
	}

	if event.Phase != models.PhaseVote && event.Phase != models.PhasePickDays {
		return "", nil, apperr.Conflict("the event no longer accepts attendees in phase %s", event.Phase)
	}

	person, err := s.people.GetBySlug(ctx, event.ID, slug)
	if err != nil {
		return "", nil, apperr.Internal(err, "failed to load attendee slot")
	}
	if person == nil {
		return "", nil, apperr.NotFound("no attendee named %q in this event", slug)
	}

	_, current := s.resolver.ResolveViewer(ctx, event, creds)
	if requireExisting && current == nil {
		return "", nil, apperr.Unauthorized("join the event before switching names")
	}

	active, err := s.sessions.GetActiveByPerson(ctx, event.ID, person.ID)
	if err != nil {
		return "", nil, apperr.Internal(err, "failed to check the slot claim")
	}
	if active != nil && (current == nil || active.ID != current.ID) {
		return "", nil, apperr.Conflict("the name %q is already taken", person.Label)
	}

	// re-claiming the host slot keeps the host token shape, so the claim
	// keeps its host signal
	isHostSlot := event.HostPersonID != nil && *event.HostPersonID == person.ID
	rawToken := identity.MintSessionToken(event.ID, person.ID, isHostSlot)

	params := repository.ClaimParams{
		EventID:   event.ID,
		PersonID:  person.ID,
		UserID:    s.resolver.AuthenticatedUserID(ctx, creds),
		TokenHash: identity.HashToken(rawToken),
	}
	if current != nil && current.PersonID != person.ID {
		params.ReplaceSessionID = &current.ID
	}

	if _, err := s.sessions.Claim(ctx, params); err != nil {
		return "", nil, apperr.Internal(err, "failed to claim the attendee slot")
	}

	s.cache.InvalidateEvent(ctx, event.Token, operation)
	s.notifier.Notify(ctx, event.Token, operation, map[string]interface{}{
		"person": person.Slug,
	})

	// from here on the fresh token is the caller's credential
	creds.SessionToken = rawToken
	creds.PreferredSlug = person.Slug
	view, err := s.GetEventView(ctx, token, creds)
	if err != nil {
		return "", nil, err
	}
	return rawToken, view, nil
}

func (s *eventService) Leave(ctx context.Context, token string, creds identity.Credentials) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	viewer, session := s.resolver.ResolveViewer(ctx, event, creds)
	if session == nil {
		return nil, apperr.Unauthorized("no attendee session to leave")
	}

	if err := s.sessions.Deactivate(ctx, session.ID); err != nil {
		return nil, apperr.Internal(err, "failed to leave the event")
	}

	s.cache.InvalidateEvent(ctx, event.Token, "leave")
	s.notifier.Notify(ctx, event.Token, "leave", map[string]interface{}{
		"person": viewer.Slug,
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) TransitionPhase(ctx context.Context, token string, creds identity.Credentials, target string) (*models.EventView, error) {
	if !phase.Valid(target) {
		return nil, apperr.Validation("unknown phase %q", target)
	}

	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	host := s.resolver.ResolveHost(ctx, event, creds)
	if !host.Confidence.AtLeast(identity.ConfidenceMedium) {
		return nil, apperr.Unauthorized("changing the phase requires host access")
	}

	if !phase.CanForce(event.Phase, target) {
		return nil, apperr.Conflict("cannot move from %s to %s", event.Phase, target)
	}

	moved, err := s.events.UpdatePhase(ctx, event.ID, event.Phase, target)
	if err != nil {
		return nil, apperr.Internal(err, "failed to change the phase")
	}
	if !moved {
		return nil, apperr.Conflict("the event phase changed concurrently")
	}

	s.metrics.PhaseTransitions.WithLabelValues(event.Phase, target).Inc()
	s.log.WithEvent(event.Token).
		WithField("from", event.Phase).
		WithField("to", target).
		WithField("method", host.Method).
		Info("host forced a phase transition")

	s.cache.InvalidateEvent(ctx, event.Token, "phaseChange")
	s.notifier.Notify(ctx, event.Token, "phase", map[string]interface{}{
		"phase": target,
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) SetFinalDate(ctx context.Context, token string, creds identity.Credentials, day *time.Time) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	host := s.resolver.ResolveHost(ctx, event, creds)
	if !host.Confidence.AtLeast(identity.ConfidenceMedium) {
		return nil, apperr.Unauthorized("setting the final date requires host access")
	}

	if day == nil {
		return s.clearFinalDate(ctx, event, token, creds)
	}

	if event.Phase != models.PhaseResults && event.Phase != models.PhaseFinalized {
		return nil, apperr.Conflict("the final date can only be set from phase %s", models.PhaseResults)
	}

	key := availability.DayKey(*day)
	first, last := availability.DayKey(event.StartDate), availability.DayKey(event.EndDate)
	if key.Before(first) || key.After(last) {
		return nil, apperr.Validation("day %s is outside the event range", key.Format(models.DayKeyFormat))
	}

	updated, err := s.events.SetFinalDate(ctx, event.ID, key)
	if err != nil {
		return nil, apperr.Internal(err, "failed to set the final date")
	}
	if !updated {
		return nil, apperr.Conflict("the event changed concurrently")
	}

	if event.Phase == models.PhaseResults {
		s.metrics.PhaseTransitions.WithLabelValues(models.PhaseResults, models.PhaseFinalized).Inc()
	}

	s.cache.InvalidateEvent(ctx, event.Token, "setFinalDate")
	s.notifier.Notify(ctx, event.Token, "finalDate", map[string]interface{}{
		"day":   key.Format(models.DayKeyFormat),
		"phase": models.PhaseFinalized,
	})

	return s.GetEventView(ctx, token, creds)
}

// clearFinalDate removes the pick but keeps the event finalized; the phase
// machine has no way back out of FINALIZED.
func (s *eventService) clearFinalDate(ctx context.Context, event *models.Event, token string, creds identity.Credentials) (*models.EventView, error) {
	if event.Phase != models.PhaseFinalized {
		return nil, apperr.Conflict("no final date to clear in phase %s", event.Phase)
	}

	cleared, err := s.events.ClearFinalDate(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to clear the final date")
	}
	if !cleared {
		return nil, apperr.Conflict("the event changed concurrently")
	}

	s.cache.InvalidateEvent(ctx, event.Token, "setFinalDate")
	s.notifier.Notify(ctx, event.Token, "finalDate", map[string]interface{}{
		"day": nil,
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) ToggleResultsVisibility(ctx context.Context, token string, creds identity.Credentials, visible bool) (*models.EventView, error) {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return nil, err
	}
	event, err = s.ApplyDueTransitions(ctx, event)
	if err != nil {
		return nil, err
	}

	host := s.resolver.ResolveHost(ctx, event, creds)
	if !host.Confidence.AtLeast(identity.ConfidenceMedium) {
		return nil, apperr.Unauthorized("changing results visibility requires host access")
	}

	if err := s.events.SetResultsVisible(ctx, event.ID, visible); err != nil {
		return nil, apperr.Internal(err, "failed to change results visibility")
	}

	s.cache.InvalidateEvent(ctx, event.Token, "toggleResultsVisibility")
	s.notifier.Notify(ctx, event.Token, "resultsVisibility", map[string]interface{}{
		"visible": visible,
	})

	return s.GetEventView(ctx, token, creds)
}

func (s *eventService) ApplyDueTransitions(ctx context.Context, event *models.Event) (*models.Event, error) {
	// only VOTE has automatic exits
	if event.Phase != models.PhaseVote {
		return event, nil
	}

	inCount, err := s.votes.CountIn(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to count votes")
	}

	next, due := phase.Due(event.Phase, inCount, event.Quorum, event.VoteDeadline, s.now())
	if !due {
		return event, nil
	}

	moved, err := s.events.UpdatePhase(ctx, event.ID, event.Phase, next)
	if err != nil {
		return nil, apperr.Internal(err, "failed to apply the due phase transition")
	}
	if !moved {
		// another request moved it first; trust the stored state
		current, err := s.events.GetByID(ctx, event.ID)
		if err != nil {
			return nil, apperr.Internal(err, "failed to reload event")
		}
		if current != nil {
			return current, nil
		}
		return event, nil
	}

	from := event.Phase
	event.Phase = next

	s.metrics.PhaseTransitions.WithLabelValues(from, next).Inc()
	s.log.WithEvent(event.Token).
		WithField("from", from).
		WithField("to", next).
		WithField("in_count", inCount).
		Info("due phase transition applied")

	s.cache.InvalidateEvent(ctx, event.Token, "phaseChange")
	s.notifier.Notify(ctx, event.Token, "phase", map[string]interface{}{
		"phase": next,
	})

	return event, nil
}

func (s *eventService) Invalidate(ctx context.Context, token, operation string) error {
	event, err := s.loadEvent(ctx, token)
	if err != nil {
		return err
	}
	s.cache.InvalidateEvent(ctx, event.Token, operation)
	return nil
}

// buildView assembles the composite payload for one viewer. It must stay a
// pure function of stored event state plus the resolved identity, because
// its output is cached under the viewer fingerprint.
func (s *eventService) buildView(ctx context.Context, event *models.Event, viewer *models.Person, host identity.HostDecision) (*models.EventView, error) {
	start := time.Now()
	defer func() {
		s.metrics.ViewBuildDuration.Observe(time.Since(start).Seconds())
	}()

	people, err := s.people.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load attendees")
	}
	votes, err := s.votes.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load votes")
	}
	blocks, err := s.blocks.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load day blocks")
	}
	claimedIDs, err := s.sessions.ListActivePersonIDs(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load claims")
	}

	claimed := make(map[uint64]struct{}, len(claimedIDs))
	for _, id := range claimedIDs {
		claimed[id] = struct{}{}
	}

	voteByPerson := make(map[uint64]*models.Vote, len(votes))
	var inSet []uint64
	for _, vote := range votes {
		voteByPerson[vote.PersonID] = vote
		if vote.In {
			inSet = append(inSet, vote.PersonID)
		}
	}

	view := &models.EventView{
		Token:          event.Token,
		Title:          event.Title,
		Phase:          event.Phase,
		StartDate:      event.StartDate.Format(models.DayKeyFormat),
		EndDate:        event.EndDate.Format(models.DayKeyFormat),
		VoteDeadline:   event.VoteDeadline,
		Quorum:         event.Quorum,
		InCount:        len(inSet),
		ResultsVisible: event.ResultsVisible,
		HostName:       event.HostName,
		IsHost:         host.IsHost,
		HostMethod:     host.Method,
		Attendees:      make([]models.AttendeeView, 0, len(people)),
	}
	if event.FinalDate != nil {
		day := event.FinalDate.Format(models.DayKeyFormat)
		view.FinalDate = &day
	}

	labelByID := make(map[uint64]string, len(people))
	for _, person := range people {
		labelByID[person.ID] = person.Label

		row := models.AttendeeView{
			Slug:  person.Slug,
			Label: person.Label,
			IsYou: viewer != nil && viewer.ID == person.ID,
		}
		if _, ok := claimed[person.ID]; ok {
			row.Claimed = true
		}
		if vote, ok := voteByPerson[person.ID]; ok {
			row.Voted = true
			in := vote.In
			row.In = &in
		}
		view.Attendees = append(view.Attendees, row)
	}

	if availabilityVisible(event, host) {
		result := availability.Compute(inSet, engineBlocks(blocks), event.StartDate, event.EndDate)
		view.Availability = availabilityView(result, labelByID)
	}

	if viewer != nil {
		view.Viewer = viewerView(viewer, voteByPerson[viewer.ID], blocks)
	}

	return view, nil
}

// availabilityVisible: the day summary appears once picking starts. While
// the host keeps results hidden, only viewers with a host signal strong
// enough to mutate still see it.
func availabilityVisible(event *models.Event, host identity.HostDecision) bool {
	switch event.Phase {
	case models.PhasePickDays:
		return true
	case models.PhaseResults, models.PhaseFinalized:
		return event.ResultsVisible || host.Confidence.AtLeast(identity.ConfidenceMedium)
	default:
		return false
	}
}

// normalizeDays truncates to UTC midnight, drops duplicates and rejects days
// outside the event range.
func normalizeDays(days []time.Time, start, end time.Time) ([]time.Time, error) {
	first, last := availability.DayKey(start), availability.DayKey(end)

	seen := make(map[time.Time]struct{}, len(days))
	normalized := make([]time.Time, 0, len(days))
	for _, day := range days {
		key := availability.DayKey(day)
		if key.Before(first) || key.After(last) {
			return nil, apperr.Validation("day %s is outside the event range", key.Format(models.DayKeyFormat))
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, key)
	}

	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Before(normalized[j]) })
	return normalized, nil
}

func engineBlocks(blocks []*models.DayBlock) []availability.Block {
	out := make([]availability.Block, 0, len(blocks))
	for _, block := range blocks {
		out = append(out, availability.Block{
			PersonID:  block.PersonID,
			Day:       block.Day,
			Anonymous: block.Anonymous,
		})
	}
	return out
}

func availabilityView(result availability.Result, labelByID map[uint64]string) *models.AvailabilityView {
	view := &models.AvailabilityView{
		TotalIn: result.TotalIn,
		Days:    make([]models.DayView, 0, len(result.Days)),
		Top3:    make([]models.DayView, 0, len(result.Top3)),
	}
	for _, day := range result.Days {
		view.Days = append(view.Days, dayView(day, labelByID))
	}
	for _, day := range result.Top3 {
		view.Top3 = append(view.Top3, dayView(day, labelByID))
	}
	if result.EarliestAll != nil {
		formatted := result.EarliestAll.Format(models.DayKeyFormat)
		view.EarliestAll = &formatted
	}
	if result.EarliestMost != nil {
		formatted := result.EarliestMost.Format(models.DayKeyFormat)
		view.EarliestMost = &formatted
	}
	return view
}

func dayView(day availability.Day, labelByID map[uint64]string) models.DayView {
	view := models.DayView{
		Day:       day.Day.Format(models.DayKeyFormat),
		Available: day.Available,
		Blocked:   day.Blocked,
	}
	for _, personID := range day.BlockedBy {
		if label, ok := labelByID[personID]; ok {
			view.BlockedBy = append(view.BlockedBy, label)
		}
	}
	return view
}

func viewerView(viewer *models.Person, vote *models.Vote, blocks []*models.DayBlock) *models.ViewerView {
	view := &models.ViewerView{
		PersonID:    viewer.ID,
		Slug:        viewer.Slug,
		Label:       viewer.Label,
		BlockedDays: []string{},
	}
	if vote != nil {
		view.Voted = true
		in := vote.In
		view.In = &in
	}
	for _, block := range blocks {
		if block.PersonID != viewer.ID {
			continue
		}
		view.BlockedDays = append(view.BlockedDays, block.Day.Format(models.DayKeyFormat))
		if block.Anonymous {
			view.Anonymous = true
		}
	}
	sort.Strings(view.BlockedDays)
	return view
}
