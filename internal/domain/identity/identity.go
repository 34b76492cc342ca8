package identity

// Identity is the resolved caller of a request: either a verified user or a
// synthetic read-only viewer backed by an anonymous session. Advisory session
// state never contributes to it.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	Anonymous bool
	ReadOnly  bool
	// Token is the raw bearer token for authenticated callers; used for
	// session activity tracking and logout.
	Token  string
	Claims *Claims
}

// AnonymousIdentity derives the synthetic viewer for a live anonymous
// session. The username is deterministic so repeated requests with the same
// hash resolve identically.
func AnonymousIdentity(hash string) *Identity {
	return &Identity{
		UserID:    "anon:" + hash,
		Username:  "anon-" + hash[:8],
		Role:      "viewer",
		Anonymous: true,
		ReadOnly:  true,
	}
}
