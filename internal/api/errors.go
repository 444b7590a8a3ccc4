package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/rishta/internal/attach"
	"github.com/matheus3301/rishta/internal/backend"
	"github.com/matheus3301/rishta/internal/chat"
	"github.com/matheus3301/rishta/internal/outbox"
	"github.com/matheus3301/rishta/internal/session"
)

// toStatus maps a domain error to a gRPC status, keeping the message.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	return grpcstatus.Errorf(codeOf(err), "%s: %v", op, err)
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, backend.ErrNoToken),
		errors.Is(err, session.ErrLoggedOut),
		errors.Is(err, session.ErrTokenExpired),
		backend.IsUnauthorized(err):
		return codes.Unauthenticated
	case errors.Is(err, chat.ErrNotFound), backend.IsNotFound(err):
		return codes.NotFound
	case errors.Is(err, chat.ErrNotActive),
		errors.Is(err, chat.ErrNotFailed),
		errors.Is(err, attach.ErrRevoked):
		return codes.FailedPrecondition
	case errors.Is(err, chat.ErrStale):
		return codes.Aborted
	case errors.Is(err, outbox.ErrEmpty),
		errors.Is(err, attach.ErrTooLarge),
		errors.Is(err, attach.ErrNotFile),
		errors.Is(err, session.ErrNoViewer):
		return codes.InvalidArgument
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusBadRequest:
			return codes.InvalidArgument
		case http.StatusForbidden:
			return codes.PermissionDenied
		case http.StatusConflict:
			return codes.AlreadyExists
		case http.StatusTooManyRequests:
			return codes.ResourceExhausted
		}
		if apiErr.Status >= 500 {
			return codes.Unavailable
		}
	}
	return codes.Internal
}

func required(field, value string) error {
	if value == "" {
		return grpcstatus.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return nil
}
