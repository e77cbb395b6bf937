package main

import (
	"flag"
	"fmt"
	"log/slog"
	"time"

	"WaDesk/ai/gpt"
	"WaDesk/bot"
	"WaDesk/bot/kb"
	"WaDesk/bot/whatsapp"
	"WaDesk/impl/core"
	"WaDesk/internal/config"
	repository "WaDesk/internal/database"
	"WaDesk/internal/http-server/api"
	"WaDesk/internal/lib/logger"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/escalation"
	"WaDesk/internal/service/keys"
	"WaDesk/internal/service/outbox"
	"WaDesk/internal/service/queue"
	"WaDesk/internal/service/registry"
	"WaDesk/internal/service/session"
	"WaDesk/internal/store"
	"WaDesk/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	// Initialize Telegram bot if enabled
	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.BotName, conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", slog.String("error", err.Error()))
		} else {
			// Route error-level records to the admin chat
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")

			go func() {
				if err := tgBot.Start(); err != nil {
					lg.Error("telegram bot error", slog.String("error", err.Error()))
				}
			}()
		}
	}

	lg.Info("starting wadesk", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	handler := core.New(lg)
	handler.SetAuthKey(conf.Listen.ApiKey)

	var st store.Store
	if conf.Store.Backend == "mongo" {
		mongoStore, err := repository.NewMongoStore(conf, lg)
		if err != nil {
			lg.Error("mongo store", sl.Err(err))
			return
		}
		st = mongoStore
		lg.With(
			slog.String("host", conf.Mongo.Host),
			slog.String("port", conf.Mongo.Port),
			slog.String("database", conf.Mongo.Database),
		).Info("mongo store initialized")
	} else {
		fileStore, err := store.NewFileStore(conf.Store.Path, conf.Store.Retries, lg)
		if err != nil {
			lg.Error("file store", sl.Err(err))
			return
		}
		st = fileStore
		lg.With(
			slog.String("path", conf.Store.Path),
		).Info("file store initialized")
	}

	reg := registry.New(st, conf.Bot.AttemptLimit, lg)
	qm := queue.New(reg, st, lg)
	ob := outbox.New(lg)
	keyService := keys.New(st, lg)

	var matcher escalation.Matcher
	if gptMatcher := gpt.NewMatcher(conf, lg); gptMatcher != nil {
		matcher = gptMatcher
		lg.With(
			sl.Secret("openai_key", conf.OpenAI.ApiKey),
			slog.String("model", conf.OpenAI.Model),
		).Info("gpt matcher initialized")
	} else {
		kbMatcher, err := kb.Load(conf.Bot.KnowledgeBasePath)
		if err != nil {
			lg.Warn("loading knowledge base, starting empty", sl.Err(err))
			kbMatcher = kb.NewMatcher(nil)
		}
		matcher = kbMatcher
		lg.With(
			slog.String("path", conf.Bot.KnowledgeBasePath),
		).Info("knowledge base matcher initialized")
	}

	creds, err := session.NewDirCredentials(conf.Session.CredentialsDir)
	if err != nil {
		lg.Error("credentials dir", sl.Err(err))
		return
	}

	gateway := whatsapp.NewGateway(
		conf.WhatsApp.AccessToken,
		conf.WhatsApp.VerifyToken,
		conf.WhatsApp.AppSecret,
		lg,
	)

	sessions := session.NewManager(gateway, creds, st, session.Options{
		InitTimeout:    time.Duration(conf.Session.InitTimeoutSec) * time.Second,
		Heartbeat:      time.Duration(conf.Session.HeartbeatSec) * time.Second,
		ReconnectDelay: time.Duration(conf.Session.ReconnectDelaySec) * time.Second,
		PurgeRetries:   conf.Session.PurgeRetries,
	}, lg)

	hub := ws.NewHub(lg)
	hub.SetHandler(handler)
	go hub.Run()

	esc := escalation.New(reg, matcher, handler, conf.Bot.ConfidenceThreshold, conf.Bot.EscalateKeywords, lg)

	sessions.SetHooks(session.Hooks{
		OnReady: func(lineID string) {
			ob.Drain(lineID, func(destination, text string) error {
				sent, sendErr := sessions.Send(lineID, destination, text)
				if sendErr != nil {
					return sendErr
				}
				if !sent {
					return fmt.Errorf("session not ready")
				}
				return nil
			})
		},
		OnStatus:  hub.BroadcastSessionStatus,
		OnMessage: handler.HandleInboundMessage,
		OnQr:      hub.BroadcastQr,
	})

	handler.SetRegistry(reg)
	handler.SetQueueService(qm)
	handler.SetSessionService(sessions)
	handler.SetEscalation(esc)
	handler.SetOutbox(ob)
	handler.SetKeyStore(keyService)
	handler.SetHub(hub)

	if tgBot != nil {
		tgBot.SetProvider(handler)
	}

	// *** blocking start with http server ***
	err = api.New(conf, lg, handler, hub, gateway)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Error("service stopped")
}
