package entities

// Identity names the user a chat session belongs to. Unauthenticated
// sessions use the anonymous identity and are never persisted.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// AnonymousID is the placeholder identifier for signed-out sessions.
const AnonymousID = "anonymous"

// Anonymous returns the identity used when no user is signed in.
func Anonymous() Identity {
	return Identity{ID: AnonymousID, DisplayName: "Guest"}
}

// IsAnonymous reports whether the identity has no persisted transcript.
func (i Identity) IsAnonymous() bool {
	return i.ID == "" || i.ID == AnonymousID
}
