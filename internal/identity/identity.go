package identity

import (
	"fmt"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

// Credentials are the optional identity signals one request can carry. Any
// subset may be present; resolution tries them strongest first.
type Credentials struct {
	AuthToken     string
	SessionToken  string
	PreferredSlug string
}

// Confidence grades how strongly a host signal matched. Privileged
// operations require at least ConfidenceMedium; weaker matches are only
// surfaced for display.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

// AtLeast reports whether c meets the given minimum.
func (c Confidence) AtLeast(min Confidence) bool {
	return c >= min
}

// HostDecision is the outcome of host resolution. Method names the signal
// that matched; Detail is a human-readable note for logs.
type HostDecision struct {
	IsHost     bool
	Method     string
	Confidence Confidence
	Detail     string
}

// Fingerprint keys the view cache per viewer class. Two requests share a
// cached view only when they would see the same payload, so the key covers
// both who the viewer is and whether a host signal matched.
func Fingerprint(session *models.Session, person *models.Person, host HostDecision) string {
	fp := "anon"
	switch {
	case session != nil && session.UserID != nil:
		fp = fmt.Sprintf("u:%d", *session.UserID)
	case person != nil:
		fp = fmt.Sprintf("p:%d", person.ID)
	}
	if host.IsHost {
		fp += "+host:" + host.Method
	}
	return fp
}
