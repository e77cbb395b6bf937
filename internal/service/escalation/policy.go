package escalation

import (
	"context"
	"log/slog"
	"strings"

	"WaDesk/entity"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/registry"
)

// Match is a candidate auto-reply from the knowledge-base matcher.
type Match struct {
	Response   string
	Confidence float64
}

// Matcher finds a knowledge-base answer for a customer message.
// A nil match means no candidate at all.
type Matcher interface {
	FindMatch(ctx context.Context, text string) (*Match, error)
}

// Sender delivers (or queues) an outbound reply on a line.
type Sender interface {
	Send(lineID, destination, text string) error
}

const handoffReply = "Um momento, vou te transferir para um de nossos atendentes."

// Policy decides, per inbound message, between bot auto-reply and
// escalation to the human waiting queue.
type Policy struct {
	registry  *registry.Registry
	matcher   Matcher
	sender    Sender
	threshold float64
	keywords  []string
	log       *slog.Logger
}

func New(reg *registry.Registry, matcher Matcher, sender Sender, threshold float64, keywords []string, log *slog.Logger) *Policy {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Policy{
		registry:  reg,
		matcher:   matcher,
		sender:    sender,
		threshold: threshold,
		keywords:  lowered,
		log:       log.With(sl.Module("escalation")),
	}
}

// HandleInbound records the message and, while the conversation is still
// bot-handled, either answers it or moves it toward the waiting queue.
// Conversations already waiting or assigned are left to the humans.
func (p *Policy) HandleInbound(ctx context.Context, lineID, chatID, text, contactName string) (*entity.Conversation, error) {
	conv, err := p.registry.RecordInbound(ctx, lineID, chatID, text, contactName)
	if err != nil {
		return nil, err
	}
	if conv.State != entity.StateAutomation {
		return conv, nil
	}

	if p.wantsHuman(text) {
		conv, err = p.registry.Escalate(ctx, lineID, chatID, entity.ReasonUserRequested)
		if err != nil {
			return nil, err
		}
		p.reply(lineID, chatID, handoffReply)
		return conv, nil
	}

	if p.matcher != nil {
		match, err := p.matcher.FindMatch(ctx, text)
		if err != nil {
			p.log.Warn("matcher failed, counting as miss", sl.Err(err))
		} else if match != nil && match.Confidence >= p.threshold {
			p.reply(lineID, chatID, match.Response)
			p.log.Debug("bot auto-reply",
				slog.String("line_id", lineID),
				slog.String("chat_id", chatID),
				slog.Float64("confidence", match.Confidence),
			)
			return conv, nil
		}
	}

	conv, escalated, err := p.registry.BumpBotAttempt(ctx, lineID, chatID)
	if err != nil {
		return nil, err
	}
	if escalated {
		p.reply(lineID, chatID, handoffReply)
		p.log.Info("bot gave up, conversation queued",
			slog.String("line_id", lineID),
			slog.String("chat_id", chatID),
			slog.Int("attempts", conv.BotAttempts),
		)
	}
	return conv, nil
}

func (p *Policy) wantsHuman(text string) bool {
	lowered := strings.ToLower(text)
	for _, k := range p.keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

func (p *Policy) reply(lineID, chatID, text string) {
	if p.sender == nil {
		return
	}
	if err := p.sender.Send(lineID, chatID, text); err != nil {
		p.log.Warn("bot reply failed",
			slog.String("line_id", lineID),
			slog.String("chat_id", chatID),
			sl.Err(err),
		)
	}
}
