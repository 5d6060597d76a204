package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Session tokens carry their scope in cleartext:
// <prefix>.<eventID>.<personID>.<random>. The guest prefix marks tokens
// minted on join; the host prefix marks tokens minted for the host slot,
// which is what keeps an anonymous host recognizable without an account.
const (
	guestTokenPrefix = "g"
	hostTokenPrefix  = "h"
)

// TokenParts is the decoded structure of a session token.
type TokenParts struct {
	Host     bool
	EventID  uint64
	PersonID uint64
}

// MintSessionToken issues a fresh token for a claimed slot.
func MintSessionToken(eventID, personID uint64, host bool) string {
	prefix := guestTokenPrefix
	if host {
		prefix = hostTokenPrefix
	}
	return fmt.Sprintf("%s.%d.%d.%s", prefix, eventID, personID, uuid.NewString())
}

// ParseToken decodes a session token. ok is false for anything that does
// not match the minted shape.
func ParseToken(token string) (TokenParts, bool) {
	parts := strings.SplitN(token, ".", 4)
	if len(parts) != 4 || parts[3] == "" {
		return TokenParts{}, false
	}
	if parts[0] != guestTokenPrefix && parts[0] != hostTokenPrefix {
		return TokenParts{}, false
	}

	eventID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return TokenParts{}, false
	}
	personID, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return TokenParts{}, false
	}

	return TokenParts{
		Host:     parts[0] == hostTokenPrefix,
		EventID:  eventID,
		PersonID: personID,
	}, true
}

// HashToken is the storage form of a session token. Only the hash ever
// reaches the database; the raw token lives in the caller's browser.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
