package session

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
)

// Qr returns the pending QR payload for a line, when one awaits scanning.
func Qr(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.session"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		lineID := r.URL.Query().Get("line_id")
		if lineID == "" {
			render.JSON(w, r, response.Error("line_id is required"))
			return
		}

		payload, pending, err := handler.SessionQr(lineID)
		if err != nil {
			logger.Warn("qr lookup failed", slog.String("line_id", lineID), sl.Err(err))
			render.JSON(w, r, response.Error("Line not found"))
			return
		}
		if !pending {
			render.JSON(w, r, response.Error("No QR pending for this line"))
			return
		}

		render.JSON(w, r, response.Ok(map[string]string{
			"line_id": lineID,
			"qr":      payload,
		}))
	}
}
