package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldBudgetID      = "budget_id"
	FieldRuleID        = "rule_id"
	FieldMonth         = "month"
	FieldFrequency     = "frequency"
	FieldAmount        = "amount"
	FieldGenerated     = "generated"
	FieldDeleted       = "deleted"
	FieldNextDate      = "next_date"
	FieldCaller        = "caller"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentExpander = "expander"
	ComponentRecalc   = "recalculator"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentAuth     = "auth"
)
