package audithook

// Action constants for audit events.
const (
	// Record actions
	ActionRecordCreated = "record.created"
	ActionStatusChanged = "record.status_changed"
	ActionOwnerChanged  = "record.owner_changed"
	ActionJournalFailed = "record.journal_failed"

	// Stream actions
	ActionDetectionDropped = "stream.detection_dropped"
	ActionStreamState      = "stream.state_changed"

	// Bridge actions
	ActionAutoWriteFailed = "bridge.write_failed"
)

// Resource constants for audit events.
const (
	ResourceRecord    = "record"
	ResourceStream    = "stream"
	ResourceDetection = "detection"
)

// Category constants for audit events.
const (
	CategoryCustody   = "custody"
	CategoryIngestion = "ingestion"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
