package conversation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/cont"
	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/lib/validate"
	"WaDesk/internal/service/registry"
)

type ClaimRequest struct {
	LineID string `json:"line_id" validate:"required"`
	ChatID string `json:"chat_id" validate:"required"`
}

// Claim assigns a waiting conversation to the requesting agent.
func Claim(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var req ClaimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.JSON(w, r, response.Error("line_id and chat_id are required"))
			return
		}

		conv, err := handler.ClaimConversation(r.Context(), req.LineID, req.ChatID, user.Username)
		if err != nil {
			logger.Warn("claim rejected",
				slog.String("line_id", req.LineID),
				slog.String("chat_id", req.ChatID),
				slog.String("agent", user.Username),
				sl.Err(err),
			)
			render.JSON(w, r, RejectResponse(err))
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}

// RejectResponse maps registry errors onto the API envelope. Conflicts keep
// the holder's name in the message; not-found stays distinguishable.
func RejectResponse(err error) response.Response {
	if holder, ok := registry.ConflictHolder(err); ok {
		return response.Error("Conversation already assigned to " + holder)
	}
	if errors.Is(err, registry.ErrNotFound) {
		return response.Error("Conversation not found")
	}
	if errors.Is(err, registry.ErrClosed) {
		return response.Error("Conversation already closed")
	}
	if errors.Is(err, registry.ErrStillAutomated) {
		return response.Error("Conversation is still handled by the bot")
	}
	return response.Error(err.Error())
}
