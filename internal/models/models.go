package models

import "time"

// Event phases. VOTE opens attendance voting, PICK_DAYS collects blocked
// days, RESULTS exposes the ranking, FINALIZED pins a date, FAILED marks a
// vote that missed quorum before its deadline.
const (
	PhaseVote      = "VOTE"
	PhasePickDays  = "PICK_DAYS"
	PhaseResults   = "RESULTS"
	PhaseFinalized = "FINALIZED"
	PhaseFailed    = "FAILED"
)

// DayKeyFormat is the canonical wire format for calendar days.
const DayKeyFormat = "2006-01-02"

// Event represents one scheduling event. The core mutates only Phase,
// FinalDate and ResultsVisible; everything else is fixed at creation.
type Event struct {
	ID             uint64     `db:"id"`
	Token          string     `db:"token"`
	Title          string     `db:"title"`
	StartDate      time.Time  `db:"start_date"`
	EndDate        time.Time  `db:"end_date"`
	VoteDeadline   time.Time  `db:"vote_deadline"`
	Quorum         int        `db:"quorum"`
	Phase          string     `db:"phase"`
	FinalDate      *time.Time `db:"final_date"`
	ResultsVisible bool       `db:"results_visible"`
	HostUserID     *uint64    `db:"host_user_id"`
	HostPersonID   *uint64    `db:"host_person_id"`
	HostName       string     `db:"host_name"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Person is a fixed name slot created with the event. Attendees claim a
// slot by opening a session against it; the slot itself never changes.
type Person struct {
	ID        uint64    `db:"id"`
	EventID   uint64    `db:"event_id"`
	Label     string    `db:"label"`
	Slug      string    `db:"slug"`
	CreatedAt time.Time `db:"created_at"`
}

// Session binds a browser or an authenticated user to a person slot. Only
// the sha256 of the issued token is stored. Sessions are deactivated, never
// deleted, so claim history survives.
type Session struct {
	ID        uint64    `db:"id"`
	EventID   uint64    `db:"event_id"`
	PersonID  uint64    `db:"person_id"`
	UserID    *uint64   `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Vote is one attendance decision, unique per (event, person), upserted on
// every change.
type Vote struct {
	EventID   uint64    `db:"event_id"`
	PersonID  uint64    `db:"person_id"`
	In        bool      `db:"in_vote"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DayBlock marks one person unavailable on one day. Day is stored at UTC
// midnight. Anonymous blocks count against availability but are never
// attributed in views.
type DayBlock struct {
	EventID   uint64    `db:"event_id"`
	PersonID  uint64    `db:"person_id"`
	Day       time.Time `db:"day"`
	Anonymous bool      `db:"anonymous"`
}
