package chat

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidArgument    ErrorKind = "INVALID_ARGUMENT"
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindNoSchemaConfigured ErrorKind = "NO_SCHEMA_CONFIGURED"
	KindSynthesisRefused   ErrorKind = "SYNTHESIS_REFUSED"
	KindValidationRejected ErrorKind = "VALIDATION_REJECTED"
	KindUpstreamFailure    ErrorKind = "UPSTREAM_FAILURE"
	KindUpstreamTimeout    ErrorKind = "UPSTREAM_TIMEOUT"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindAlreadyExists      ErrorKind = "ALREADY_EXISTS"
	KindInternal           ErrorKind = "INTERNAL"
)

// Client-facing copy.
const (
	MessageNoSchema          = "Please contact your administrator to upload a database schema."
	MessageNoSchemaAssistant = "Please contact your administrator to upload a database schema before using the chat."
	MessageRefused           = "Your query is either unrelated to your database schema or references tables/columns that do not exist. Please ask about the specific tables and columns in your schema."
	MessageNotSelect         = "Only SELECT queries are allowed for safety."
	MessageNotSelectTurn     = "Generated SQL is not a SELECT. For safety only SELECT queries are allowed."
	MessageNotSelectLog      = "Non-SELECT query rejected"
	MessageSynthesisFailed   = "Failed to generate SQL. Please try again later."
	MessageQueryFailed       = "Query execution failed."
	MessageQueryTimeout      = "Query timed out."
	MessageInvalidCreds      = "Invalid credentials"
	MessageUserNotFound      = "User not found"
	MessageSessionNotFound   = "Session not found"
	MessageSchemaRequired    = "schema is required for user creation"
	MessageProposedSQLPrefix = "Here is a proposed SQL query: "
	MessageExplain           = "SQL generated based on your database schema"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the classification of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return KindInternal
}
