package domain

// WebSocket message types to client.
const (
	MsgTypeError = "error"
)

// Error codes sent in error frames.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeBacklogFull   = "BACKLOG_FULL"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

// ConnState is the lifecycle state of one client connection.
type ConnState int32

const (
	ConnConnecting ConnState = iota
	ConnActive
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnActive:
		return "active"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}
