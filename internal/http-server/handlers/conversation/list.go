package conversation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/entity"
	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
)

// List returns conversations, optionally filtered by state and by assigned
// agent for the per-agent dashboard views.
func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.conversation"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		state := r.URL.Query().Get("state")
		agent := r.URL.Query().Get("agent")

		if state != "" && !entity.ValidState(state) {
			render.JSON(w, r, response.Error("Unknown state: "+state))
			return
		}

		list, err := handler.ListConversations(r.Context(), state, agent)
		if err != nil {
			logger.Error("listing conversations", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to list conversations"))
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}
