package identity

import (
	"fmt"
	"strings"

	"github.com/its333/NoStressPlanner-sub000/internal/models"
)

// hostProbe bundles everything the matchers may inspect for one request.
type hostProbe struct {
	UserID       *uint64
	SessionToken string
	ViewerLabel  string
}

type hostMatcher struct {
	method     string
	confidence Confidence
	match      func(event *models.Event, probe hostProbe) (bool, string)
}

// hostMatchers is evaluated in order of descending confidence, so the first
// hit is always the strongest available signal. Adding a signal means adding
// a row here, nothing else.
var hostMatchers = []hostMatcher{
	{method: "user-id", confidence: ConfidenceHigh, match: matchHostUserID},
	{method: "token-embed", confidence: ConfidenceHigh, match: matchHostTokenEmbed},
	{method: "creation-pattern", confidence: ConfidenceMedium, match: matchHostCreationPattern},
	{method: "name-match", confidence: ConfidenceLow, match: matchHostName},
}

// matchHostUserID: the authenticated account is the recorded host account.
func matchHostUserID(event *models.Event, probe hostProbe) (bool, string) {
	if probe.UserID == nil || event.HostUserID == nil {
		return false, ""
	}
	if *probe.UserID != *event.HostUserID {
		return false, ""
	}
	return true, fmt.Sprintf("authenticated user %d is the host", *probe.UserID)
}

// matchHostTokenEmbed: the session token is a host token whose embedded slot
// is the event's recorded host slot.
func matchHostTokenEmbed(event *models.Event, probe hostProbe) (bool, string) {
	parts, ok := ParseToken(probe.SessionToken)
	if !ok || !parts.Host || parts.EventID != event.ID {
		return false, ""
	}
	if event.HostPersonID == nil || parts.PersonID != *event.HostPersonID {
		return false, ""
	}
	return true, fmt.Sprintf("host token bound to slot %d", parts.PersonID)
}

// matchHostCreationPattern: the session token has the creation-time host
// shape for this event, but the embedded slot cannot be verified. A
// well-formed host token pointing at a different slot is stale, not a match.
func matchHostCreationPattern(event *models.Event, probe hostProbe) (bool, string) {
	if probe.SessionToken == "" {
		return false, ""
	}
	prefix := fmt.Sprintf("%s.%d.", hostTokenPrefix, event.ID)
	if !strings.HasPrefix(probe.SessionToken, prefix) {
		return false, ""
	}
	if parts, ok := ParseToken(probe.SessionToken); ok && event.HostPersonID != nil && parts.PersonID != *event.HostPersonID {
		return false, ""
	}
	return true, "host-shaped token for this event"
}

// matchHostName: the resolved viewer's display name equals the host name.
// Anyone can claim a slot with the host's name, so this never authorizes.
func matchHostName(event *models.Event, probe hostProbe) (bool, string) {
	if probe.ViewerLabel == "" || event.HostName == "" {
		return false, ""
	}
	if !strings.EqualFold(probe.ViewerLabel, event.HostName) {
		return false, ""
	}
	return true, fmt.Sprintf("attendee name matches host name %q", event.HostName)
}
