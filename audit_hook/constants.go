package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionBusinessRegistered  = "business.registered"
	ActionBusinessUpdated     = "business.updated"
	ActionBusinessDeactivated = "business.deactivated"
	ActionBusinessActivated   = "business.activated"

	// Ledger actions
	ActionTokensMinted = "tokens.minted"
	ActionTokensBurned = "tokens.burned"

	// Failures
	ActionOperationRejected = "operation.rejected"
)

// Resource constants for audit events.
const (
	ResourceBusiness    = "business"
	ResourceTransaction = "transaction"
	ResourceOperation   = "operation"
)

// Category constants for audit events.
const (
	CategoryRegistry = "registry"
	CategoryLedger   = "ledger"
	CategoryAccess   = "access"
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
