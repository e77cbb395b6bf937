package conversation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
)

// Stats returns the aggregate queue snapshot for the dashboard.
func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.conversation"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		stats, err := handler.QueueStats(r.Context())
		if err != nil {
			logger.Error("computing stats", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to compute stats"))
			return
		}

		render.JSON(w, r, response.Ok(stats))
	}
}
