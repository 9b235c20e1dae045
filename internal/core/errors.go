package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatState      ErrorCategory = "state"      // State corruption/conflict
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Predefined error codes
const (
	CodeDuplicateID          = "DUPLICATE_ID"
	CodeDanglingEdge         = "DANGLING_EDGE"
	CodeCycleDetected        = "CYCLE_DETECTED"
	CodeCyclicGraph          = "CYCLIC_GRAPH"
	CodeInvalidNode          = "INVALID_NODE"
	CodeTemplateNotFound     = "TEMPLATE_NOT_FOUND"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeEmptyWorkflow        = "EMPTY_WORKFLOW"
	CodeRunInProgress        = "RUN_ALREADY_IN_PROGRESS"
	CodeInvalidState         = "INVALID_STATE"
	CodeNotFound             = "NOT_FOUND"
	CodeNodeTimeout          = "NODE_TIMEOUT"
	CodeCapabilityFailed     = "CAPABILITY_FAILED"
)

// Sentinels for errors.Is matching. Only Category and Code are compared.
var (
	ErrDuplicateID          = &DomainError{Category: ErrCatConflict, Code: CodeDuplicateID}
	ErrDanglingEdge         = &DomainError{Category: ErrCatValidation, Code: CodeDanglingEdge}
	ErrCycleDetected        = &DomainError{Category: ErrCatValidation, Code: CodeCycleDetected}
	ErrCyclicGraph          = &DomainError{Category: ErrCatState, Code: CodeCyclicGraph}
	ErrTemplateNotFound     = &DomainError{Category: ErrCatNotFound, Code: CodeTemplateNotFound}
	ErrInvalidConfiguration = &DomainError{Category: ErrCatValidation, Code: CodeInvalidConfiguration}
	ErrEmptyWorkflow        = &DomainError{Category: ErrCatValidation, Code: CodeEmptyWorkflow}
	ErrRunInProgress        = &DomainError{Category: ErrCatConflict, Code: CodeRunInProgress}
	ErrInvalidState         = &DomainError{Category: ErrCatState, Code: CodeInvalidState}
	ErrNodeTimeout          = &DomainError{Category: ErrCatTimeout, Code: CodeNodeTimeout}
)

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeNodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeNotFound,
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// NewDuplicateIDError reports an id that is already present in a graph.
func NewDuplicateIDError(kind, id string) *DomainError {
	return ErrConflict(CodeDuplicateID, fmt.Sprintf("%s id %q already exists", kind, id)).
		WithDetail("id", id)
}

// NewDanglingEdgeError reports an edge endpoint that references no node.
func NewDanglingEdgeError(edgeID EdgeID, missing NodeID) *DomainError {
	return ErrValidation(CodeDanglingEdge, fmt.Sprintf("edge %q references unknown node %q", edgeID, missing)).
		WithDetail("edge_id", string(edgeID)).
		WithDetail("node_id", string(missing))
}

// NewCycleDetectedError reports an edge whose insertion would close a cycle.
func NewCycleDetectedError(source, target NodeID) *DomainError {
	return ErrValidation(CodeCycleDetected, fmt.Sprintf("edge %s -> %s would create a cycle", source, target)).
		WithDetail("source", string(source)).
		WithDetail("target", string(target))
}

// NewCyclicGraphError reports a graph that cannot be linearised.
func NewCyclicGraphError(unordered []NodeID) *DomainError {
	ids := make([]string, len(unordered))
	for i, id := range unordered {
		ids[i] = string(id)
	}
	return ErrState(CodeCyclicGraph, fmt.Sprintf("workflow graph contains a cycle through %s", strings.Join(ids, ", "))).
		WithDetail("nodes", ids)
}

// NewTemplateNotFoundError reports an unknown template id.
func NewTemplateNotFoundError(id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeTemplateNotFound,
		Message:  fmt.Sprintf("template not found: %s", id),
		Details:  map[string]interface{}{"template_id": id},
	}
}

// FieldProblem classifies a configuration field failure.
type FieldProblem string

const (
	FieldMissing      FieldProblem = "missing"
	FieldMistyped     FieldProblem = "mistyped"
	FieldInvalidValue FieldProblem = "invalid_value"
	FieldUnknown      FieldProblem = "unknown_field"
)

// FieldError describes one offending configuration field.
type FieldError struct {
	Field    string       `json:"field"`
	Problem  FieldProblem `json:"problem"`
	Expected string       `json:"expected,omitempty"`
}

func (f FieldError) String() string {
	if f.Expected == "" {
		return fmt.Sprintf("%s (%s)", f.Field, f.Problem)
	}
	return fmt.Sprintf("%s (%s, expected %s)", f.Field, f.Problem, f.Expected)
}

// NewInvalidConfigurationError builds an InvalidConfiguration error listing fields.
// Fields are sorted so messages are stable.
func NewInvalidConfigurationError(agentType AgentType, fields []FieldError) *DomainError {
	sorted := make([]FieldError, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Field < sorted[j].Field })

	parts := make([]string, len(sorted))
	for i, f := range sorted {
		parts[i] = f.String()
	}
	msg := fmt.Sprintf("invalid %s configuration", agentType)
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, ", ")
	}
	return ErrValidation(CodeInvalidConfiguration, msg).
		WithDetail("agent_type", string(agentType)).
		WithDetail("fields", sorted)
}

// FieldErrorsOf extracts the offending fields from an InvalidConfiguration error.
func FieldErrorsOf(err error) []FieldError {
	var domErr *DomainError
	if !errors.As(err, &domErr) || domErr.Code != CodeInvalidConfiguration {
		return nil
	}
	fields, _ := domErr.Details["fields"].([]FieldError)
	return fields
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}
