// Package core provides the error types shared by every saga engine
// component: catalog lookups, replay, interaction, and anti-cheat all
// raise the same small family of errors so a host can switch on Code
// without importing every package.
package core

import "fmt"

// Error codes raised across the engine. Each maps to one failure kind
// from the error handling design: a catalog miss, a bad argument, a
// gate failure on a mutating call, a corrupt replay, or an aggregate
// validation/anti-cheat report.
const (
	CodeUnknownRef          = "UNKNOWN_REF"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeTriggerNotActivatable = "TRIGGER_NOT_ACTIVATABLE"
	CodeFeatureNotInteractable = "FEATURE_NOT_INTERACTABLE"
	CodeUnknownPatternRef   = "UNKNOWN_PATTERN_REF"
	CodeStateCorrupt        = "STATE_CORRUPT"
	CodeAntiCheatRejected   = "ANTI_CHEAT_REJECTED"
	CodeWorldValidationFailed = "WORLD_VALIDATION_FAILED"
)

// Error is the engine's error type. It always carries a Code so callers
// can branch on failure kind without string matching, and an optional
// Cause for wrapping.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match by Code alone, ignoring Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// UnknownRef reports a catalog lookup miss. kind is the catalog kind
// (e.g. "character"), ref is the offending reference name.
func UnknownRef(kind, ref string) *Error {
	return newErr(CodeUnknownRef, fmt.Sprintf("unknown %s reference: %q", kind, ref))
}

// InvalidInput reports a malformed or disallowed argument.
func InvalidInput(field, reason string) *Error {
	return newErr(CodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// TriggerNotActivatable reports a proximity or token-gate failure on a
// mutating trigger call.
func TriggerNotActivatable(reason string) *Error {
	return newErr(CodeTriggerNotActivatable, reason)
}

// FeatureNotInteractable reports an approach-radius, token, or
// max-interaction failure on a mutating feature interaction call.
func FeatureNotInteractable(reason string) *Error {
	return newErr(CodeFeatureNotInteractable, reason)
}

// UnknownPatternRef reports a trigger pattern expansion failure.
func UnknownPatternRef(ref string) *Error {
	return newErr(CodeUnknownPatternRef, fmt.Sprintf("unknown saga trigger pattern reference: %q", ref))
}

// StateCorrupt reports malformed transaction data encountered during
// replay. Fatal for the affected SagaInstance.
func StateCorrupt(detail string) *Error {
	return newErr(CodeStateCorrupt, detail)
}

// AntiCheatRejected reports a claim rejected before commit.
type AntiCheatRejected struct {
	ClaimType  string
	Reason     string
	Confidence float64
}

func (e *AntiCheatRejected) Error() string {
	return fmt.Sprintf("[%s] %s claim rejected: %s (confidence %.2f)", CodeAntiCheatRejected, e.ClaimType, e.Reason, e.Confidence)
}

// WorldValidationFailed aggregates every error produced by the world
// data validator. Never wraps a single error — the validator always
// accumulates and reports everything it found in one pass.
type WorldValidationFailed struct {
	Errors []string
}

func (e *WorldValidationFailed) Error() string {
	return fmt.Sprintf("[%s] world data validation failed with %d error(s)", CodeWorldValidationFailed, len(e.Errors))
}

// Wrap attaches a code and message to an existing error, preserving it
// as Cause. Returns nil if err is nil.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}
