// Package errors defines the typed error kinds surfaced by the secret
// management core. Callers match on the concrete types with errors.As;
// the CLI renders Message/Details/Suggestion for users.
package errors

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed user input: an empty or
// invalid-character name, a missing required field, or credentials that
// fail schema validation. Never retried.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e ValidationError) Error() string {
	msg := "validation error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	msg += ": " + e.Message
	if e.Suggestion != "" {
		msg += "\n  Try: " + e.Suggestion
	}
	return msg
}

// ConflictError reports a duplicate name or URL on create.
type ConflictError struct {
	Resource string
	Name     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Resource, e.Name)
}

// ReferentialIntegrityError refuses deletion of a secret manager that
// still owns encrypted records.
type ReferentialIntegrityError struct {
	ManagerName string
	Count       int
}

func (e ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("cannot delete secret manager '%s': %d secret(s) still reference it. Transition your secrets to another secret manager and retry",
		e.ManagerName, e.Count)
}

// DecryptionError reports a malformed stored record or missing key.
// Fatal for the single resolve operation; never retried.
type DecryptionError struct {
	RecordName string
	Err        error
}

func (e DecryptionError) Error() string {
	msg := "decryption failed"
	if e.RecordName != "" {
		msg += " for record '" + e.RecordName + "'"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e DecryptionError) Unwrap() error { return e.Err }

// DelegateOperationError wraps a remote agent failure after the retry
// budget is exhausted.
type DelegateOperationError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e DelegateOperationError) Error() string {
	msg := fmt.Sprintf("delegate operation '%s' failed", e.Operation)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e DelegateOperationError) Unwrap() error { return e.Err }

// SecretManagementError reports a failed connectivity or encryption
// check against a backend. Surfaced directly to the caller.
type SecretManagementError struct {
	Message    string
	Suggestion string
	Err        error
}

func (e SecretManagementError) Error() string {
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if e.Err != nil && e.Message != "" {
		parts = append(parts, "\n  Details: "+e.Err.Error())
	}
	if e.Suggestion != "" {
		parts = append(parts, "\n  Try: "+e.Suggestion)
	}
	return strings.Join(parts, "")
}

func (e SecretManagementError) Unwrap() error { return e.Err }

// AuthorizationError reports a failed RBAC check. No retry.
type AuthorizationError struct {
	AccountID string
	Action    string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s in account %s", e.Action, e.AccountID)
}

// ProgrammingError indicates a broken internal invariant, such as an
// encryption type with no registered adapter. Not user-recoverable.
type ProgrammingError struct {
	Message string
}

func (e ProgrammingError) Error() string {
	return e.Message + ". Please contact support"
}

// NotFoundError reports a missing document.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}
