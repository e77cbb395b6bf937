package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"WaDesk/internal/config"
	"WaDesk/internal/http-server/handlers/conversation"
	"WaDesk/internal/http-server/handlers/errors"
	"WaDesk/internal/http-server/handlers/key"
	"WaDesk/internal/http-server/handlers/presence"
	"WaDesk/internal/http-server/handlers/session"
	"WaDesk/internal/http-server/middleware/authenticate"
	"WaDesk/internal/http-server/middleware/timeout"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

// Handler is everything the API surface needs from the core.
type Handler interface {
	authenticate.Authenticate
	ws.Authenticator
	conversation.Core
	session.Core
	presence.Core
	key.Core
}

// Webhook is the inbound gateway surface. Meta calls these unauthenticated;
// the gateway does its own signature verification.
type Webhook interface {
	HandleWebhookVerification(w http.ResponseWriter, r *http.Request)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

func New(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub, webhook Webhook) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(15))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	// WebSocket upgrades authenticate via query token, outside the
	// bearer-header middleware.
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, handler, log, w, r)
	})

	if webhook != nil {
		router.Get("/webhook/whatsapp", webhook.HandleWebhookVerification)
		router.Post("/webhook/whatsapp", webhook.HandleWebhook)
	}

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authenticate.New(log, handler))

		v1.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversation.List(log, handler))
			r.Get("/get", conversation.Get(log, handler))
			r.Get("/stats", conversation.Stats(log, handler))
			r.Post("/claim", conversation.Claim(log, handler))
			r.Post("/transfer", conversation.Transfer(log, handler))
			r.Post("/close", conversation.Close(log, handler))
			r.Post("/assign", conversation.Assign(log, handler))
			r.Post("/batch/claim", conversation.BatchClaim(log, handler))
			r.Post("/batch/close", conversation.BatchClose(log, handler))
		})
		v1.Route("/sessions", func(r chi.Router) {
			r.Get("/", session.Status(log, handler))
			r.Get("/qr", session.Qr(log, handler))
			r.Post("/create", session.Create(log, handler))
			r.Post("/logout", session.Logout(log, handler))
			r.Post("/send", session.Send(log, handler))
		})
		v1.Route("/presence", func(r chi.Router) {
			r.Get("/", presence.List(log, handler))
			r.Post("/", presence.Set(log, handler))
		})
		v1.Route("/key", func(r chi.Router) {
			r.Post("/new", key.Generate(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
