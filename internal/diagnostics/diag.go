// Package diagnostics is the one shape used for every error-taxonomy
// event surfaced to the host: a single typed record pushed over the /diag
// WebSocket, with the bare string Code promoted to a closed set.
package diagnostics

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err Severity = "error"
)

// Code enumerates the error taxonomy as stable wire identifiers.
type Code string

const (
	CodeInvalidValue Code = "invalid_value"
	CodeCapacityExceeded Code = "capacity_exceeded"
	CodeSurfaceNotReady Code = "surface_not_ready"
	CodeContextCreationFailed Code = "context_creation_failed"
	CodeContextLost Code = "context_lost"
	CodeCreateFailed Code = "create_failed"
	CodeSwitchFailed Code = "switch_failed"
	CodePermissionDenied Code = "permission_denied"
)

type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code Code `json:"code"`
	Summary string `json:"summary"`
	Detail string `json:"detail,omitempty"`
	LikelyCauses []string `json:"likely_causes,omitempty"`
	SuggestedFixes []string `json:"suggested_fixes,omitempty"`
	Evidence map[string]any `json:"evidence,omitempty"`
}
