package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the extraction run ID
	FieldRunID = "run_id"

	// FieldFilePath is the monitored file path being processed
	FieldFilePath = "file_path"

	// FieldEntity is the business entity the extracted fields belong to
	FieldEntity = "entity"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the model-file store identifier
	FieldSource = "source"
)

// Standard metric fields used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
