package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldClientIP  = "client_ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"

	FieldAccountID     = "account_id"
	FieldTransactionID = "transaction_id"
	FieldDeviceID      = "device_id"
	FieldAmountCents   = "amount_cents"
	FieldCategory      = "category"
	FieldRemaining     = "remaining_quota"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentStorage = "storage"
	ComponentBridge  = "bridge"
	ComponentEngine  = "engine"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
)
