package conversation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
)

// Get returns the open conversation for a thread key.
func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.conversation"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		lineID := r.URL.Query().Get("line_id")
		chatID := r.URL.Query().Get("chat_id")
		if lineID == "" || chatID == "" {
			render.JSON(w, r, response.Error("line_id and chat_id are required"))
			return
		}

		conv, err := handler.GetConversation(r.Context(), lineID, chatID)
		if err != nil {
			logger.Warn("conversation lookup failed",
				slog.String("line_id", lineID),
				slog.String("chat_id", chatID),
				sl.Err(err),
			)
			render.JSON(w, r, RejectResponse(err))
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}
