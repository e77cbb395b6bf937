package session

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/lib/api/response"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/lib/validate"
)

type SendRequest struct {
	LineID      string `json:"line_id" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Text        string `json:"text" validate:"required"`
}

// Send delivers an agent-authored message on a line. When the session is not
// ready the message lands in the outbox and goes out on the next ready
// transition.
func Send(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.session"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.JSON(w, r, response.Error("line_id, destination and text are required"))
			return
		}

		if err := handler.Send(req.LineID, req.Destination, req.Text); err != nil {
			logger.Error("send failed",
				slog.String("line_id", req.LineID),
				slog.String("destination", req.Destination),
				sl.Err(err),
			)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		render.JSON(w, r, response.OkMessage("Message accepted"))
	}
}
