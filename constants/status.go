package constants

// RunStatus is the canonical status for rows in bill_run.
type RunStatus string

// Stable values (store these exact strings in DB).
const (
	RunStatusPreviewed RunStatus = "PREVIEWED" // reconciled, not sent
	RunStatusSubmitted RunStatus = "SUBMITTED" // accepted by QuickBooks
	RunStatusRejected  RunStatus = "REJECTED"  // empty/incomplete bill or QuickBooks refusal
	RunStatusFailed    RunStatus = "FAILED"    // terminal failure (malformed document, transport)
)
