package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/entity"
	"WaDesk/internal/lib/api/cont"
	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/lib/validate"
)

// Core is the presence surface the handlers consume.
type Core interface {
	SetPresence(ctx context.Context, agentID, availability string) error
	ListPresence(ctx context.Context) ([]entity.AgentPresence, error)
}

type SetRequest struct {
	Availability string `json:"availability" validate:"required,oneof=available busy away"`
}

// Set updates the requesting agent's availability.
func Set(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.presence"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user := cont.GetUser(r.Context())
		if user == nil {
			render.JSON(w, r, response.Error("Unauthorized"))
			return
		}

		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.JSON(w, r, response.Error("availability must be available, busy or away"))
			return
		}

		if err := handler.SetPresence(r.Context(), user.Username, req.Availability); err != nil {
			logger.Error("setting presence", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to update presence"))
			return
		}

		render.JSON(w, r, response.OkMessage("Presence updated"))
	}
}

// List returns every known agent presence record.
func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.presence"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		records, err := handler.ListPresence(r.Context())
		if err != nil {
			logger.Error("listing presence", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to list presence"))
			return
		}

		render.JSON(w, r, response.Ok(records))
	}
}
