package session

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/response"
)

// Status returns a snapshot of every registered line.
func Status(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok(handler.SessionStatuses()))
	}
}
