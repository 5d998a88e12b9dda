package domain

import (
	"strconv"
	"strings"
	"time"
)

// RequestStatus is the state of a contact request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
	StatusBlocked  RequestStatus = "blocked"
)

// MaxStatusLength bounds free-text statuses accepted by the compatibility mode.
const MaxStatusLength = 32

// Known reports whether s is one of the built-in statuses.
func (s RequestStatus) Known() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusBlocked:
		return true
	}
	return false
}

// Active reports whether s occupies the pair's single active slot.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// ChatRequest is a contact request between two users.
type ChatRequest struct {
	ID        string        `json:"id"`
	FromUser  string        `json:"from_user"`
	ToUser    string        `json:"to_user"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Other returns the party that is not username.
func (r *ChatRequest) Other(username string) string {
	if r.FromUser == username {
		return r.ToUser
	}
	return r.FromUser
}

// Relationship is a contact request as seen by one of its parties.
type Relationship struct {
	User   string        `json:"user"`
	Status RequestStatus `json:"status"`
}

// PairKey normalises an unordered pair of usernames. The length prefix
// keeps keys unambiguous when usernames contain the separator.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

// ChatRequestBody names a directed pair.
type ChatRequestBody struct {
	FromUser string `json:"from_user" binding:"required"`
	ToUser   string `json:"to_user" binding:"required"`
}

// UpdateStatusBody changes the status of a pair's relationship.
type UpdateStatusBody struct {
	FromUser  string `json:"from_user" binding:"required"`
	ToUser    string `json:"to_user" binding:"required"`
	NewStatus string `json:"new_status" binding:"required"`
}
