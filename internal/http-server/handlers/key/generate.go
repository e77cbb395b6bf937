package key

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

// Core issues API keys for agent accounts.
type Core interface {
	GenerateApiKey(username string) (string, error)
}

type GenerateRequest struct {
	Username string `json:"username" validate:"required"`
}

// Generate mints (or returns) the API key for an agent. Admin only.
func Generate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.key"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user := cont.GetUser(r.Context())
		if user == nil || !user.IsAdmin() {
			render.JSON(w, r, response.Error("Admin access required"))
			return
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("failed to decode request body", sl.Err(err))
			render.JSON(w, r, response.Error("Invalid request body"))
			return
		}
		if err := validate.Struct(&req); err != nil {
			render.JSON(w, r, response.Error("username is required"))
			return
		}

		key, err := handler.GenerateApiKey(req.Username)
		if err != nil {
			logger.Error("generating api key", sl.Err(err))
			render.JSON(w, r, response.Error("Failed to generate key"))
			return
		}

		render.JSON(w, r, response.Ok(map[string]string{
			"username": req.Username,
			"key":      key,
		}))
	}
}
