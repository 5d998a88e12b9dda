package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware keys)
	FieldUsername = "username"

	// Delivery
	FieldConnID    = "conn_id"
	FieldFromUser  = "from_user"
	FieldToUser    = "to_user"
	FieldMessageID = "message_id"
	FieldRequest   = "chat_request_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
