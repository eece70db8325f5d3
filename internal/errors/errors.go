package errors

import (
	"errors"
	"fmt"
)

// Session errors

// ErrUnauthenticated is returned when a request carries no credentials.
var ErrUnauthenticated = errors.New("not authenticated with the CRM")

// ErrSessionExpired is returned when credentials could not be refreshed.
// The session has already been destroyed when this is returned.
var ErrSessionExpired = errors.New("session expired")

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Driver string
	Err    error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("%s migration failed: %v", e.Driver, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Record errors

// ErrNotFound reports a missing record. Kind is "event", "status" or "deal".
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ErrValidation reports a record that failed field checks.
type ErrValidation struct {
	Field string
	Err   error
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
}

func (e *ErrValidation) Unwrap() error {
	return e.Err
}

// CRM errors

// ErrUpstream is a non-success answer from the CRM on a primary call.
type ErrUpstream struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *ErrUpstream) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crm %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("crm %s failed with status %d", e.Operation, e.StatusCode)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

// ErrTaskRejected is returned when the CRM answered a task creation with a
// code other than SUCCESS.
type ErrTaskRejected struct {
	Code    string
	Message string
}

func (e *ErrTaskRejected) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("task rejected by crm: %s", e.Code)
	}
	return fmt.Sprintf("task rejected by crm: %s: %s", e.Code, e.Message)
}

// ErrNotifierUnavailable is returned when an update task is requested but
// no CRM task notifier is wired.
var ErrNotifierUnavailable = errors.New("crm task notifier is not configured")

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is or wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// IsAuth reports whether err requires the caller to restart authorization.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrSessionExpired)
}
