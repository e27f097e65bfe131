package log

// Common field names for structured logging
const (
	FieldComponent       = "component"
	FieldRequestID       = "request_id"
	FieldClientIP        = "client_ip"
	FieldMethod          = "method"
	FieldPath            = "path"
	FieldStatusCode      = "status_code"
	FieldDuration        = "duration_ms"
	FieldContentLength   = "content_length"
	FieldUserAgent       = "user_agent"
	FieldSuccess         = "success"
	FieldError           = "error"
	FieldOperation       = "operation"
	FieldTemplateVersion = "template_version"
	FieldSlot            = "slot"
	FieldSide            = "side"
	FieldAttached        = "attached"
	FieldExpenses        = "expenses"
	FieldContainer       = "container"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentSession = "session"
)

// Operations defines standard operation names
const (
	OpExtract   = "extract"
	OpAttach    = "attach"
	OpRender    = "render"
	OpSerialize = "serialize"
	OpRestore   = "restore"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
