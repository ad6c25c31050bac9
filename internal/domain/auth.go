package domain

// AuthPayload is the claim set of a caller's bearer token
type AuthPayload struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	IsAdmin    bool     `json:"is_admin"`
	Permission []string `json:"permission"`
}

// Caller identifies who is invoking a user-facing operation
type Caller struct {
	UserID   string
	Username string
	IsAdmin  bool
}

func (p AuthPayload) Caller() Caller {
	return Caller{UserID: p.UserID, Username: p.Username, IsAdmin: p.IsAdmin}
}

// CanAccess reports whether the caller may act on data owned by userID
func (c Caller) CanAccess(userID string) bool {
	return c.IsAdmin || (c.UserID != "" && c.UserID == userID)
}

// WorkerTokenResponse is returned to a worker that asked for a transport token
type WorkerTokenResponse struct {
	ClientID   string `json:"client_id"`
	Token      string `json:"token"`
	ExpiresIn  int    `json:"expires_in"`
	Claimed    bool   `json:"claimed"`
	LinkedUser string `json:"linked_user"`
}
