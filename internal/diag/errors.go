package diag

import (
	"errors"
	"fmt"

	"github.com/roach88/jsgraph/internal/ident"
)

// GraphError represents a failed operation on the compilation's graph or its
// bookkeeping. Unlike a Diagnostic it aborts the operation that returned it.
type GraphError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Module identifies the affected module, if any.
	Module ident.ModuleIdentifier

	// Dependency identifies the affected dependency, if any.
	Dependency ident.DependencyID
}

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// ErrCodeDuplicateModule indicates a module identifier was added twice.
	ErrCodeDuplicateModule ErrorCode = "DUPLICATE_MODULE"

	// ErrCodeUnknownModule indicates a lookup by an identifier not in the graph.
	ErrCodeUnknownModule ErrorCode = "UNKNOWN_MODULE"

	// ErrCodeDanglingReference indicates a dependency or block id that does
	// not resolve to a record.
	ErrCodeDanglingReference ErrorCode = "DANGLING_REFERENCE"

	// ErrCodeCriticalAlreadySet indicates a second write to a critical slot.
	ErrCodeCriticalAlreadySet ErrorCode = "CRITICAL_ALREADY_SET"

	// ErrCodeCutoverApplied indicates a cutover snapshot set was applied twice.
	ErrCodeCutoverApplied ErrorCode = "CUTOVER_APPLIED"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	switch {
	case e.Module != "" && e.Dependency != "":
		return fmt.Sprintf("%s: %s (module=%s, dependency=%s)", e.Code, e.Message, e.Module, e.Dependency.Short())
	case e.Module != "":
		return fmt.Sprintf("%s: %s (module=%s)", e.Code, e.Message, e.Module)
	case e.Dependency != "":
		return fmt.Sprintf("%s: %s (dependency=%s)", e.Code, e.Message, e.Dependency.Short())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches GraphErrors by code so sentinel comparisons work with errors.Is.
func (e *GraphError) Is(target error) bool {
	var t *GraphError
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Module == "" && t.Dependency == ""
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrDuplicateModule    = &GraphError{Code: ErrCodeDuplicateModule, Message: "module already in graph"}
	ErrUnknownModule      = &GraphError{Code: ErrCodeUnknownModule, Message: "module not in graph"}
	ErrCriticalAlreadySet = &GraphError{Code: ErrCodeCriticalAlreadySet, Message: "critical diagnostic already set"}
	ErrAlreadyApplied     = &GraphError{Code: ErrCodeCutoverApplied, Message: "cutover snapshot already applied"}
)

// NewDuplicateModuleError reports a second AddModule for the same identifier.
func NewDuplicateModuleError(module ident.ModuleIdentifier) *GraphError {
	return &GraphError{Code: ErrCodeDuplicateModule, Message: "module already in graph", Module: module}
}

// NewUnknownModuleError reports a lookup miss where the caller required a hit.
func NewUnknownModuleError(module ident.ModuleIdentifier) *GraphError {
	return &GraphError{Code: ErrCodeUnknownModule, Message: "module not in graph", Module: module}
}

// NewDanglingReferenceError reports a dependency id with no record.
func NewDanglingReferenceError(module ident.ModuleIdentifier, dep ident.DependencyID) *GraphError {
	return &GraphError{Code: ErrCodeDanglingReference, Message: "reference does not resolve", Module: module, Dependency: dep}
}

// IsDuplicateModule returns true if err is a duplicate module error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateModule(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeDuplicateModule
	}
	return false
}

// IsUnknownModule returns true if err is an unknown module error.
func IsUnknownModule(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeUnknownModule
	}
	return false
}
