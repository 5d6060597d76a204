package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/its333/NoStressPlanner-sub000/internal/auth"
	"github.com/its333/NoStressPlanner-sub000/internal/logger"
	"github.com/its333/NoStressPlanner-sub000/internal/models"
	"github.com/its333/NoStressPlanner-sub000/internal/repository"
)

type mockSessionRepo struct {
	getActiveByUser      func(ctx context.Context, eventID, userID uint64) (*models.Session, error)
	getActiveByTokenHash func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error)
	getActiveByPerson    func(ctx context.Context, eventID, personID uint64) (*models.Session, error)
}

func (m *mockSessionRepo) GetActiveByUser(ctx context.Context, eventID, userID uint64) (*models.Session, error) {
	if m.getActiveByUser != nil {
		return m.getActiveByUser(ctx, eventID, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) GetActiveByTokenHash(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
	if m.getActiveByTokenHash != nil {
		return m.getActiveByTokenHash(ctx, eventID, tokenHash)
	}
	return nil, nil
}

func (m *mockSessionRepo) GetActiveByPerson(ctx context.Context, eventID, personID uint64) (*models.Session, error) {
	if m.getActiveByPerson != nil {
		return m.getActiveByPerson(ctx, eventID, personID)
	}
	return nil, nil
}

func (m *mockSessionRepo) ListActivePersonIDs(ctx context.Context, eventID uint64) ([]uint64, error) {
	return nil, nil
}

func (m *mockSessionRepo) Claim(ctx context.Context, params repository.ClaimParams) (*models.Session, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSessionRepo) Deactivate(ctx context.Context, sessionID uint64) error {
	return errors.New("not implemented")
}

type mockPersonRepo struct {
	getBySlug func(ctx context.Context, eventID uint64, slug string) (*models.Person, error)
	getByID   func(ctx context.Context, id uint64) (*models.Person, error)
}

func (m *mockPersonRepo) ListByEvent(ctx context.Context, eventID uint64) ([]*models.Person, error) {
	return nil, nil
}

func (m *mockPersonRepo) GetBySlug(ctx context.Context, eventID uint64, slug string) (*models.Person, error) {
	if m.getBySlug != nil {
		return m.getBySlug(ctx, eventID, slug)
	}
	return nil, nil
}

func (m *mockPersonRepo) GetByID(ctx context.Context, id uint64) (*models.Person, error) {
	if m.getByID != nil {
		return m.getByID(ctx, id)
	}
	return nil, nil
}

type mockProvider struct {
	validate func(ctx context.Context, token string) (*auth.UserContext, error)
}

func (m *mockProvider) ValidateToken(ctx context.Context, token string) (*auth.UserContext, error) {
	if m.validate != nil {
		return m.validate(ctx, token)
	}
	return nil, auth.ErrInvalidToken
}

func uptr(v uint64) *uint64 {
	return &v
}

func testEvent() *models.Event {
	return &models.Event{
		ID:       77,
		Token:    "evt-abc",
		HostName: "Dana",
	}
}

func testLogger() *logger.Logger {
	return logger.NewLogger("identity-test")
}

func TestResolveViewerByAuthenticatedUser(t *testing.T) {
	event := testEvent()
	session := &models.Session{ID: 9, EventID: 77, PersonID: 5, UserID: uptr(42), Active: true}
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	sessions := &mockSessionRepo{
		getActiveByUser: func(ctx context.Context, eventID, userID uint64) (*models.Session, error) {
			assert.Equal(t, uint64(77), eventID)
			assert.Equal(t, uint64(42), userID)
			return session, nil
		},
		getActiveByTokenHash: func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
			t.Fatal("token strategy should not run when the user strategy matched")
			return nil, nil
		},
	}
	people := &mockPersonRepo{
		getByID: func(ctx context.Context, id uint64) (*models.Person, error) {
			assert.Equal(t, uint64(5), id)
			return person, nil
		},
	}
	provider := &mockProvider{
		validate: func(ctx context.Context, token string) (*auth.UserContext, error) {
			assert.Equal(t, "bearer-token", token)
			return &auth.UserContext{UserID: 42, Token: token}, nil
		},
	}

	r := NewResolver(sessions, people, provider, testLogger())
	gotPerson, gotSession := r.ResolveViewer(context.Background(), event, Credentials{
		AuthToken:    "bearer-token",
		SessionToken: "g.77.3.should-be-ignored",
	})

	require.NotNil(t, gotPerson)
	require.NotNil(t, gotSession)
	assert.Equal(t, uint64(5), gotPerson.ID)
	assert.Equal(t, uint64(9), gotSession.ID)
}

func TestResolveViewerBySessionToken(t *testing.T) {
	event := testEvent()
	raw := MintSessionToken(77, 5, false)
	session := &models.Session{ID: 9, EventID: 77, PersonID: 5, TokenHash: HashToken(raw), Active: true}
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	sessions := &mockSessionRepo{
		getActiveByTokenHash: func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
			assert.Equal(t, uint64(77), eventID)
			assert.Equal(t, HashToken(raw), tokenHash)
			return session, nil
		},
	}
	people := &mockPersonRepo{
		getByID: func(ctx context.Context, id uint64) (*models.Person, error) {
			return person, nil
		},
	}

	r := NewResolver(sessions, people, nil, testLogger())
	gotPerson, gotSession := r.ResolveViewer(context.Background(), event, Credentials{SessionToken: raw})

	require.NotNil(t, gotPerson)
	require.NotNil(t, gotSession)
	assert.Equal(t, uint64(5), gotPerson.ID)
}

func TestResolveViewerByPreferredSlug(t *testing.T) {
	event := testEvent()
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	t.Run("slug with a live claim resolves", func(t *testing.T) {
		sessions := &mockSessionRepo{
			getActiveByPerson: func(ctx context.Context, eventID, personID uint64) (*models.Session, error) {
				return &models.Session{ID: 3, EventID: 77, PersonID: 5, Active: true}, nil
			},
		}
		people := &mockPersonRepo{
			getBySlug: func(ctx context.Context, eventID uint64, slug string) (*models.Person, error) {
				assert.Equal(t, "dana", slug)
				return person, nil
			},
		}

		r := NewResolver(sessions, people, nil, testLogger())
		gotPerson, gotSession := r.ResolveViewer(context.Background(), event, Credentials{PreferredSlug: "dana"})
		require.NotNil(t, gotPerson)
		require.NotNil(t, gotSession)
	})

	t.Run("slug without a live claim stays anonymous", func(t *testing.T) {
		people := &mockPersonRepo{
			getBySlug: func(ctx context.Context, eventID uint64, slug string) (*models.Person, error) {
				return person, nil
			},
		}

		r := NewResolver(&mockSessionRepo{}, people, nil, testLogger())
		gotPerson, gotSession := r.ResolveViewer(context.Background(), event, Credentials{PreferredSlug: "dana"})
		assert.Nil(t, gotPerson)
		assert.Nil(t, gotSession)
	})
}

func TestResolveViewerSwallowsProviderFailure(t *testing.T) {
	event := testEvent()
	raw := MintSessionToken(77, 5, false)
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	provider := &mockProvider{
		validate: func(ctx context.Context, token string) (*auth.UserContext, error) {
			return nil, errors.New("auth system down")
		},
	}
	sessions := &mockSessionRepo{
		getActiveByTokenHash: func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
			return &models.Session{ID: 9, EventID: 77, PersonID: 5, Active: true}, nil
		},
	}
	people := &mockPersonRepo{
		getByID: func(ctx context.Context, id uint64) (*models.Person, error) {
			return person, nil
		},
	}

	r := NewResolver(sessions, people, provider, testLogger())
	gotPerson, _ := r.ResolveViewer(context.Background(), event, Credentials{
		AuthToken:    "bearer-token",
		SessionToken: raw,
	})

	require.NotNil(t, gotPerson, "provider failure must fall through to the session token")
	assert.Equal(t, uint64(5), gotPerson.ID)
}

func TestResolveViewerSwallowsStorageFault(t *testing.T) {
	event := testEvent()
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	sessions := &mockSessionRepo{
		getActiveByUser: func(ctx context.Context, eventID, userID uint64) (*models.Session, error) {
			return nil, errors.New("connection reset")
		},
		getActiveByTokenHash: func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
			return &models.Session{ID: 9, EventID: 77, PersonID: 5, Active: true}, nil
		},
	}
	people := &mockPersonRepo{
		getByID: func(ctx context.Context, id uint64) (*models.Person, error) {
			return person, nil
		},
	}
	provider := &mockProvider{
		validate: func(ctx context.Context, token string) (*auth.UserContext, error) {
			return &auth.UserContext{UserID: 42}, nil
		},
	}

	r := NewResolver(sessions, people, provider, testLogger())
	gotPerson, _ := r.ResolveViewer(context.Background(), event, Credentials{
		AuthToken:    "bearer-token",
		SessionToken: MintSessionToken(77, 5, false),
	})

	require.NotNil(t, gotPerson)
}

func TestResolveViewerUnknownCredentials(t *testing.T) {
	r := NewResolver(&mockSessionRepo{}, &mockPersonRepo{}, nil, testLogger())
	person, session := r.ResolveViewer(context.Background(), testEvent(), Credentials{
		SessionToken:  "g.77.5.never-issued",
		PreferredSlug: "nobody",
	})
	assert.Nil(t, person)
	assert.Nil(t, session)
}

func TestResolveViewerIsIdempotent(t *testing.T) {
	event := testEvent()
	raw := MintSessionToken(77, 5, false)
	person := &models.Person{ID: 5, EventID: 77, Label: "Dana", Slug: "dana"}

	sessions := &mockSessionRepo{
		getActiveByTokenHash: func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
			return &models.Session{ID: 9, EventID: 77, PersonID: 5, Active: true}, nil
		},
	}
	people := &mockPersonRepo{
		getByID: func(ctx context.Context, id uint64) (*models.Person, error) {
			return person, nil
		},
	}

	r := NewResolver(sessions, people, nil, testLogger())
	creds := Credentials{SessionToken: raw}

	first, _ := r.ResolveViewer(context.Background(), event, creds)
	second, _ := r.ResolveViewer(context.Background(), event, creds)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveHost(t *testing.T) {
	hostUser := uint64(42)
	hostPerson := uint64(5)

	cases := []struct {
		name           string
		event          *models.Event
		creds          Credentials
		provider       auth.Provider
		viewerLabel    string
		wantHost       bool
		wantMethod     string
		wantConfidence Confidence
	}{
		{
			name:  "authenticated host account",
			event: &models.Event{ID: 77, Token: "evt-abc", HostUserID: &hostUser},
			creds: Credentials{AuthToken: "bearer-token"},
			provider: &mockProvider{validate: func(ctx context.Context, token string) (*auth.UserContext, error) {
				return &auth.UserContext{UserID: 42}, nil
			}},
			wantHost:       true,
			wantMethod:     "user-id",
			wantConfidence: ConfidenceHigh,
		},
		{
			name:           "host token bound to the host slot",
			event:          &models.Event{ID: 77, Token: "evt-abc", HostPersonID: &hostPerson},
			creds:          Credentials{SessionToken: "h.77.5.random"},
			wantHost:       true,
			wantMethod:     "token-embed",
			wantConfidence: ConfidenceHigh,
		},
		{
			name:           "host-shaped token with unverifiable slot",
			event:          &models.Event{ID: 77, Token: "evt-abc"},
			creds:          Credentials{SessionToken: "h.77.9.random"},
			wantHost:       true,
			wantMethod:     "creation-pattern",
			wantConfidence: ConfidenceMedium,
		},
		{
			name:     "host token for another event",
			event:    &models.Event{ID: 77, Token: "evt-abc", HostPersonID: &hostPerson},
			creds:    Credentials{SessionToken: "h.88.5.random"},
			wantHost: false,
		},
		{
			name:     "host token bound to the wrong slot",
			event:    &models.Event{ID: 77, Token: "evt-abc", HostPersonID: &hostPerson},
			creds:    Credentials{SessionToken: "h.77.9.random"},
			wantHost: false,
		},
		{
			name:           "attendee name equals host name",
			event:          &models.Event{ID: 77, Token: "evt-abc", HostName: "Dana"},
			creds:          Credentials{SessionToken: "g.77.5.random"},
			viewerLabel:    "dana",
			wantHost:       true,
			wantMethod:     "name-match",
			wantConfidence: ConfidenceLow,
		},
		{
			name:     "guest token carries no host signal",
			event:    &models.Event{ID: 77, Token: "evt-abc", HostPersonID: &hostPerson},
			creds:    Credentials{SessionToken: "g.77.5.random"},
			wantHost: false,
		},
		{
			name:  "strongest signal wins",
			event: &models.Event{ID: 77, Token: "evt-abc", HostUserID: &hostUser, HostName: "Dana"},
			creds: Credentials{AuthToken: "bearer-token", SessionToken: "g.77.5.random"},
			provider: &mockProvider{validate: func(ctx context.Context, token string) (*auth.UserContext, error) {
				return &auth.UserContext{UserID: 42}, nil
			}},
			viewerLabel:    "Dana",
			wantHost:       true,
			wantMethod:     "user-id",
			wantConfidence: ConfidenceHigh,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sessions := &mockSessionRepo{}
			people := &mockPersonRepo{}
			if tc.viewerLabel != "" {
				person := &models.Person{ID: 5, EventID: tc.event.ID, Label: tc.viewerLabel, Slug: "slot-5"}
				sessions.getActiveByTokenHash = func(ctx context.Context, eventID uint64, tokenHash string) (*models.Session, error) {
					return &models.Session{ID: 9, EventID: tc.event.ID, PersonID: 5, Active: true}, nil
				}
				people.getByID = func(ctx context.Context, id uint64) (*models.Person, error) {
					return person, nil
				}
			}

			r := NewResolver(sessions, people, tc.provider, testLogger())
			decision := r.ResolveHost(context.Background(), tc.event, tc.creds)

			assert.Equal(t, tc.wantHost, decision.IsHost)
			if tc.wantHost {
				assert.Equal(t, tc.wantMethod, decision.Method)
				assert.Equal(t, tc.wantConfidence, decision.Confidence)
			} else {
				assert.Equal(t, ConfidenceNone, decision.Confidence)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	person := &models.Person{ID: 5}
	userSession := &models.Session{ID: 9, PersonID: 5, UserID: uptr(42)}
	anonSession := &models.Session{ID: 9, PersonID: 5}

	cases := []struct {
		name    string
		session *models.Session
		person  *models.Person
		host    HostDecision
		want    string
	}{
		{name: "authenticated user", session: userSession, person: person, want: "u:42"},
		{name: "anonymous attendee", session: anonSession, person: person, want: "p:5"},
		{name: "unrecognized viewer", want: "anon"},
		{
			name: "host signal is part of the key",
			host: HostDecision{IsHost: true, Method: "creation-pattern", Confidence: ConfidenceMedium},
			want: "anon+host:creation-pattern",
		},
		{
			name:    "attendee with host signal",
			session: anonSession,
			person:  person,
			host:    HostDecision{IsHost: true, Method: "name-match", Confidence: ConfidenceLow},
			want:    "p:5+host:name-match",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Fingerprint(tc.session, tc.person, tc.host))
		})
	}
}

func TestFingerprintSeparatesViewers(t *testing.T) {
	// two different attendees of the same event must never share a cache key
	seen := map[string]bool{}
	for id := uint64(1); id <= 5; id++ {
		fp := Fingerprint(nil, &models.Person{ID: id}, HostDecision{})
		require.False(t, seen[fp], fmt.Sprintf("fingerprint %s reused", fp))
		seen[fp] = true
	}
}
