// Package phase holds the event lifecycle rules as pure functions. Nothing
// here touches storage; callers read state, ask, then persist.
package phase

import (
	"time"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

// forced lists every from->to edge a host may take directly. Finalization
// is deliberately absent: RESULTS -> FINALIZED only happens through
// setting a final date, and FAILED is only ever reached automatically.
var forced = map[string]string{
	models.PhaseVote:     models.PhasePickDays,
	models.PhasePickDays: models.PhaseResults,
}

// Valid reports whether s is a known phase value.
func Valid(s string) bool {
	switch s {
	case models.PhaseVote, models.PhasePickDays, models.PhaseResults,
		models.PhaseFinalized, models.PhaseFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition can ever leave s.
func Terminal(s string) bool {
	return s == models.PhaseFinalized || s == models.PhaseFailed
}

// CanForce reports whether a host may move an event from one phase straight
// to another.
func CanForce(from, to string) bool {
	return forced[from] == to
}

// Due evaluates the automatic transition rule and returns the phase the
// event should move to, with false when nothing is due. Only VOTE has
// automatic exits: quorum advances it, a missed deadline fails it. The
// quorum check runs first so an event whose deadline passed after quorum
// was reached still advances.
func Due(current string, inCount, quorum int, deadline, now time.Time) (string, bool) {
	if current != models.PhaseVote {
		return "", false
	}
	if inCount >= quorum {
		return models.PhasePickDays, true
	}
	if now.After(deadline) {
		return models.PhaseFailed, true
	}
	return "", false
}
