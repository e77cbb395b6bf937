package conversation

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/cont"
	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
)

type BatchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
	// Agent optionally targets another agent, for supervisors claiming on
	// someone's behalf. Empty means the requester claims for themselves.
	Agent string `json:"agent,omitempty"`
}

// BatchClaim assigns a set of conversations to the target agent, recording
// the requester as origin when they differ. Individual failures are reported
// per item and never abort the batch.
func BatchClaim(log *slog.Logger, handler Core) http.HandlerFunc {
	return batchHandler(log, func(r *http.Request, req BatchRequest, requester string) any {
		target := req.Agent
		if target == "" {
			target = requester
		}
		return handler.BatchClaim(r.Context(), req.IDs, target, requester)
	})
}

// BatchClose terminates a set of conversations with per-item results.
func BatchClose(log *slog.Logger, handler Core) http.HandlerFunc {
	return batchHandler(log, func(r *http.Request, req BatchRequest, requester string) any {
		return handler.BatchClose(r.Context(), req.IDs, requester)
	})
}

func batchHandler(log *slog.Logger, run func(r *http.Request, req BatchRequest, requester string) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.conversation"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user := cont.GetUser(r.Context())
		if user == nil {
			render.JSON(w, r, response.Error("Unauthorized"))
			return
		}

		var req BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if len(req.IDs) == 0 {
			render.JSON(w, r, response.Error("No conversation ids provided"))
			return
		}

		render.JSON(w, r, response.Ok(run(r, req, user.Username)))
	}
}
