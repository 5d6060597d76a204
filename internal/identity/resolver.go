package identity

import (
	"context"

	"github.com/its333/NoStressPlanner-sub000/internal/auth"
	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
	"github.com/its333/NoStressPlanner-sub000/internal/repository"
)

// Resolver turns request credentials into an attendee and, separately, into
// a host decision. Resolution never fails: upstream and storage faults are
// logged and degrade to the next weaker signal, so a broken auth provider
// can never take event pages down with it.
type Resolver interface {
	// ResolveViewer finds the attendee behind the credentials, strongest
	// signal first. Both results are nil for an unrecognized viewer.
	ResolveViewer(ctx context.Context, event *models.Event, creds Credentials) (*models.Person, *models.Session)
	// ResolveHost grades the credentials against the host signals.
	ResolveHost(ctx context.Context, event *models.Event, creds Credentials) HostDecision
	// AuthenticatedUserID extracts the account id, if any, behind the
	// credentials. Provider failures read as "not authenticated".
	AuthenticatedUserID(ctx context.Context, creds Credentials) *uint64
}

type resolver struct {
	sessions repository.SessionRepository
	people   repository.PersonRepository
	provider auth.Provider // nil when no account system is configured
	log      *logger.Logger
}

func NewResolver(sessions repository.SessionRepository, people repository.PersonRepository, provider auth.Provider, log *logger.Logger) Resolver {
	return &resolver{
		sessions: sessions,
		people:   people,
		provider: provider,
		log:      log,
	}
}

func (r *resolver) ResolveViewer(ctx context.Context, event *models.Event, creds Credentials) (*models.Person, *models.Session) {
	// 1. authenticated account with an active session in this event
	if userID := r.AuthenticatedUserID(ctx, creds); userID != nil {
		session, err := r.sessions.GetActiveByUser(ctx, event.ID, *userID)
		if err != nil {
			r.log.WithEvent(event.Token).WithError(err).Warn("failed to look up session by user")
		} else if session != nil {
			if person := r.personByID(ctx, event, session.PersonID); person != nil {
				return person, session
			}
		}
	}

	// 2. anonymous session token, scoped to this event
	if creds.SessionToken != "" {
		session, err := r.sessions.GetActiveByTokenHash(ctx, event.ID, HashToken(creds.SessionToken))
		if err != nil {
			r.log.WithEvent(event.Token).WithError(err).Warn("failed to look up session by token")
		} else if session != nil {
			if person := r.personByID(ctx, event, session.PersonID); person != nil {
				return person, session
			}
		}
	}

	// 3. previously selected name, valid only while its claim is live
	if creds.PreferredSlug != "" {
		person, err := r.people.GetBySlug(ctx, event.ID, creds.PreferredSlug)
		if err != nil {
			r.log.WithEvent(event.Token).WithError(err).Warn("failed to look up person by slug")
		} else if person != nil {
			session, err := r.sessions.GetActiveByPerson(ctx, event.ID, person.ID)
			if err != nil {
				r.log.WithEvent(event.Token).WithError(err).Warn("failed to look up session by person")
			} else if session != nil {
				return person, session
			}
		}
	}

	return nil, nil
}

func (r *resolver) ResolveHost(ctx context.Context, event *models.Event, creds Credentials) HostDecision {
	probe := hostProbe{
		UserID:       r.AuthenticatedUserID(ctx, creds),
		SessionToken: creds.SessionToken,
	}
	if viewer, _ := r.ResolveViewer(ctx, event, creds); viewer != nil {
		probe.ViewerLabel = viewer.Label
	}

	for _, matcher := range hostMatchers {
		if matched, detail := matcher.match(event, probe); matched {
			return HostDecision{
				IsHost:     true,
				Method:     matcher.method,
				Confidence: matcher.confidence,
				Detail:     detail,
			}
		}
	}
	return HostDecision{}
}

func (r *resolver) AuthenticatedUserID(ctx context.Context, creds Credentials) *uint64 {
	if r.provider == nil || creds.AuthToken == "" {
		return nil
	}

	user, err := r.provider.ValidateToken(ctx, creds.AuthToken)
	if err != nil {
		// best-effort signal: an unreachable provider reads the same as an
		// invalid token
		r.log.WithError(err).Debug("auth provider lookup failed")
		return nil
	}
	if user == nil {
		return nil
	}
	return &user.UserID
}

func (r *resolver) personByID(ctx context.Context, event *models.Event, personID uint64) *models.Person {
	person, err := r.people.GetByID(ctx, personID)
	if err != nil {
		r.log.WithEvent(event.Token).WithError(err).Warn("failed to load person")
		return nil
	}
	if person == nil || person.EventID != event.ID {
		return nil
	}
	return person
}
