package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/queue"
)

// StatusProvider feeds the operator commands.
type StatusProvider interface {
	SessionStatuses() []entity.SessionInfo
	QueueStats(ctx context.Context) (*queue.Stats, error)
}

// TgBot is the operator-facing Telegram bot. It receives error-level log
// alerts through the logger handler and answers /status and /queue.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botUsername string
	adminId     int64
	provider    StatusProvider
}

func NewTgBot(botName, apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		adminId:     adminId,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

// SetProvider wires the status/queue command sources.
func (t *TgBot) SetProvider(p StatusProvider) {
	t.provider = p
}

func (t *TgBot) Start() error {

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Warn("error handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})

	dispatcher.AddHandler(handlers.NewCommand("status", t.handleStatus))
	dispatcher.AddHandler(handlers.NewCommand("queue", t.handleQueue))

	updater := ext.NewUpdater(dispatcher, nil)

	err := updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("starting polling: %w", err)
	}

	updater.Idle()
	return nil
}

func (t *TgBot) handleStatus(b *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat.Id != t.adminId || t.provider == nil {
		return nil
	}

	infos := t.provider.SessionStatuses()
	if len(infos) == 0 {
		t.plainResponse(ctx.EffectiveChat.Id, "no lines registered")
		return nil
	}

	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "%s: %s", info.LineID, info.Status)
		if info.PhoneNumber != "" {
			fmt.Fprintf(&sb, " (%s)", info.PhoneNumber)
		}
		if info.LastDisconnect != "" {
			fmt.Fprintf(&sb, " last disconnect: %s", info.LastDisconnect)
		}
		sb.WriteString("\n")
	}
	t.plainResponse(ctx.EffectiveChat.Id, sb.String())
	return nil
}

func (t *TgBot) handleQueue(b *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat.Id != t.adminId || t.provider == nil {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := t.provider.QueueStats(reqCtx)
	if err != nil {
		t.plainResponse(ctx.EffectiveChat.Id, "failed to load queue stats: "+err.Error())
		return nil
	}

	msg := fmt.Sprintf(
		"bot: %d\nwaiting: %d\nassigned: %d\nclosed: %d\nactive total: %d\navg wait: %d min",
		stats.Automation, stats.Waiting, stats.Assigned, stats.Closed, stats.Total, stats.AvgWaitMin,
	)
	t.plainResponse(ctx.EffectiveChat.Id, msg)
	return nil
}

// SendMessage delivers an alert to the admin chat. Used by the logger's
// Telegram handler.
func (t *TgBot) SendMessage(msg string) {

	t.plainResponse(t.adminId, msg)
}

func (t *TgBot) plainResponse(chatId int64, text string) {

	sanitized := sanitize(text)

	if sanitized == "" {
		t.log.With(
			slog.Int64("id", chatId),
		).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(
			slog.Int64("id", chatId),
		).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(
				slog.Int64("id", chatId),
			).Error("sending safe message", sl.Err(err))
		}
	}
}

func sanitize(input string) string {
	// MarkdownV2 reserved characters need escaping.
	reservedChars := "\\`_{}#+-.!|()[]"

	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}

	return sanitized
}
