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
	"WaDesk/internal/lib/validate"
)

type CloseRequest struct {
	LineID string `json:"line_id" validate:"required"`
	ChatID string `json:"chat_id" validate:"required"`
}

// Close terminates a conversation. Assigned conversations may only be
// closed by their holder.
func Close(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var req CloseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.JSON(w, r, response.Error("line_id and chat_id are required"))
			return
		}

		conv, err := handler.CloseConversation(r.Context(), req.LineID, req.ChatID, user.Username)
		if err != nil {
			logger.Warn("close rejected", sl.Err(err))
			render.JSON(w, r, RejectResponse(err))
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}
