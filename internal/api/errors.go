package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/querypilot/querypilot/internal/chat"
	"github.com/querypilot/querypilot/internal/observability"
)

type errorMapping struct {
	status    int
	retryable bool
}

var chatErrorMappings = map[chat.ErrorKind]errorMapping{
	chat.KindInvalidArgument:    {status: http.StatusBadRequest},
	chat.KindInvalidCredentials: {status: http.StatusUnauthorized},
	chat.KindForbidden:          {status: http.StatusForbidden},
	chat.KindNoSchemaConfigured: {status: http.StatusBadRequest},
	chat.KindSynthesisRefused:   {status: http.StatusBadRequest},
	chat.KindValidationRejected: {status: http.StatusBadRequest},
	chat.KindUpstreamFailure:    {status: http.StatusInternalServerError, retryable: true},
	chat.KindUpstreamTimeout:    {status: http.StatusGatewayTimeout, retryable: true},
	chat.KindNotFound:           {status: http.StatusNotFound},
	chat.KindAlreadyExists:      {status: http.StatusConflict},
}

// writeChatError renders a service error. Internal details stay in the log.
func writeChatError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		chatErr = &chat.Error{Kind: chat.KindInternal, Message: "Internal server error", Err: err}
	}
	mapping, ok := chatErrorMappings[chatErr.Kind]
	if !ok {
		mapping = errorMapping{status: http.StatusInternalServerError}
	}
	if mapping.status >= http.StatusInternalServerError && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("kind", string(chatErr.Kind)),
			slog.String("error", err.Error()),
		)
	}
	message := chatErr.Message
	if chatErr.Kind == chat.KindInternal {
		message = "Internal server error"
	}
	writeError(r.Context(), w, mapping.status, string(chatErr.Kind), message, mapping.retryable, chatErr.Details)
}
