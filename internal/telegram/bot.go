package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reply-tracker/internal/access"
	"reply-tracker/internal/backup"
	"reply-tracker/internal/clock"
	"reply-tracker/internal/export"
	"reply-tracker/internal/tracking"
)

const genericFailure = "❌ An error occurred while processing your request. Please try again later."

// Deps are the services the bot dispatches to.
type Deps struct {
	Gate        *access.Gate
	Tracker     *tracking.Tracker
	Exporter    *export.Exporter
	Backups     *backup.Manager
	Clock       *clock.Clock
	CleanupDays int
	Log         zerolog.Logger
}

type Bot struct {
	api *tgbotapi.BotAPI
	s   sender

	gate        *access.Gate
	tracker     *tracking.Tracker
	exporter    *export.Exporter
	backups     *backup.Manager
	clock       *clock.Clock
	cleanupDays int
	log         zerolog.Logger

	// inflight counts update handlers still running.
	inflight sync.WaitGroup
}

func New(botToken string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	b := newBot(botAPISender{api: api}, deps)
	b.api = api
	b.log.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")
	return b, nil
}

func newBot(s sender, deps Deps) *Bot {
	days := deps.CleanupDays
	if days <= 0 {
		days = 30
	}
	return &Bot{
		s:           s,
		gate:        deps.Gate,
		tracker:     deps.Tracker,
		exporter:    deps.Exporter,
		backups:     deps.Backups,
		clock:       deps.Clock,
		cleanupDays: days,
		log:         deps.Log,
	}
}

// Start polls for updates until ctx is cancelled, then stops polling and waits
// for the handlers that are still running.
func (b *Bot) Start(ctx context.Context) {
	// Backlog accumulated while the bot was down is not measured.
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		b.log.Warn().Err(err).Msg("failed to drop pending updates")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	// Handlers outlive the polling context so a reply caught just before
	// shutdown still reaches the buffer.
	handlerCtx := context.WithoutCancel(ctx)
	b.log.Info().Msg("bot started, ready to track responses")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.inflight.Wait()
			b.log.Info().Msg("update polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.inflight.Wait()
				return
			}
			b.inflight.Add(1)
			go func() {
				defer b.inflight.Done()
				b.handleUpdate(handlerCtx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("update handler panicked")
			if msg.Chat != nil {
				b.sendMessage(msg.Chat.ID, genericFailure)
			}
		}
	}()
	if msg.From == nil || msg.Chat == nil {
		b.log.Warn().Int("update_id", update.UpdateID).Msg("invalid message received")
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleIncomingMessage(msg)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}

// displayName resolves a user ID to "@username" or the full name through the
// chat membership, falling back to the bare ID.
func (b *Bot) displayName(chatID, userID int64) string {
	member, err := b.s.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil || member.User == nil {
		return ""
	}
	if member.User.UserName != "" {
		return "@" + member.User.UserName
	}
	return fullName(member.User)
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
