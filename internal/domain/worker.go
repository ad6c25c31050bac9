package domain

import "time"

// WorkerInfo represents one agent process running on an end-user machine
type WorkerInfo struct {
	ClientID     string     `json:"client_id"`
	UserID       string     `json:"user_id,omitempty"`
	Username     string     `json:"linked_user,omitempty"`
	Hostname     string     `json:"hostname"`
	LastPing     time.Time  `json:"last_ping"`
	RegisteredAt time.Time  `json:"registered_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	WSConnected  bool       `json:"ws_connected"`
	Online       bool       `json:"online"`
}

// Claimed reports whether some account owns the worker
func (w *WorkerInfo) Claimed() bool {
	return w != nil && w.UserID != ""
}

// OwnedBy reports whether userID owns the worker
func (w *WorkerInfo) OwnedBy(userID string) bool {
	return w.Claimed() && w.UserID == userID
}

// WorkerSummary is the observer-facing view of a live worker
type WorkerSummary struct {
	ClientID   string    `json:"client_id"`
	LastPing   time.Time `json:"last_ping"`
	Hostname   string    `json:"hostname"`
	LinkedUser string    `json:"linked_user"`
	Claimed    bool      `json:"claimed"`
}

func (w *WorkerInfo) Summary() WorkerSummary {
	return WorkerSummary{
		ClientID:   w.ClientID,
		LastPing:   w.LastPing,
		Hostname:   w.Hostname,
		LinkedUser: w.Username,
		Claimed:    w.Claimed(),
	}
}

// RegisterOptions carries the optional fields of a registration
type RegisterOptions struct {
	UserID   string
	Username string
	Hostname string
}

// ClaimStatus is what a worker learns about its own ownership
type ClaimStatus struct {
	Claimed    bool   `json:"claimed"`
	LinkedUser string `json:"linked_user"`
}

func (w *WorkerInfo) ClaimStatus() ClaimStatus {
	return ClaimStatus{Claimed: w.Claimed(), LinkedUser: w.Username}
}
