package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldDuration    = "duration_ms"
	FieldAccountID   = "account_id"
	FieldItemID      = "item_id"
	FieldKind        = "kind"
	FieldWindowFrom  = "window_from"
	FieldWindowTo    = "window_to"
	FieldNow         = "now"
	FieldIncluded    = "included"
	FieldSkipped     = "skipped"
	FieldPurchases   = "purchases"
	FieldCron        = "cron_expression"
	FieldReason      = "reason"
	FieldExportRef   = "export_ref"
	FieldCacheHit    = "cache_hit"
	FieldQueue       = "queue"
	FieldConcurrency = "concurrency"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentEngine    = "engine"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentScheduler = "scheduler"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpProject  = "project"
	OpSchedule = "schedule"
	OpExport   = "export"
	OpImport   = "import"
	OpConsume  = "consume"
	OpPublish  = "publish"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithProjection adds the counts of a finished projection
func (f LogFields) WithProjection(accountID string, included, skipped, purchases int) LogFields {
	f[FieldAccountID] = accountID
	f[FieldIncluded] = included
	f[FieldSkipped] = skipped
	f[FieldPurchases] = purchases
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
