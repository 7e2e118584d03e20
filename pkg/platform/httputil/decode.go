package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
	"certledger/pkg/validation"
)

// DecodeJSON decodes the request body into T. On failure it writes the error
// response and returns false.
//
//	req, ok := httputil.DecodeJSON[verifyRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	ctx := r.Context()
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logDecodeFailure(ctx, logger, "failed to decode request body", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, dErrors.New(dErrors.CodeTooLarge, "request body too large"))
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// DecodeAndValidate decodes T and runs its validate struct tags.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if err := validation.Validate(req); err != nil {
		logDecodeFailure(r.Context(), logger, "invalid request", err)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

func logDecodeFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
