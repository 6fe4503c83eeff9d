package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reply-tracker/internal/access"
	"reply-tracker/internal/analytics"
	"reply-tracker/internal/tracking"
)

const helpText = `Response tracking bot.

Admin commands:
/add_admin <id>, /remove_admin <id>, /list_admins
/add_user <id>, /remove_user <id>, /list_users
/export, /cleanup [days], /list_backups

Worker commands:
/debug, /stats, /chart

/myid shows your Telegram ID.`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, helpText)
	case "myid":
		b.handleMyID(msg)

	case "add_admin":
		b.handleAddAdmin(msg)
	case "remove_admin":
		b.handleRemoveAdmin(msg)
	case "list_admins":
		b.handleListAdmins(msg)
	case "add_user":
		b.handleAddUser(msg)
	case "remove_user":
		b.handleRemoveUser(msg)
	case "list_users":
		b.handleListUsers(msg)
	case "export":
		b.handleExport(ctx, msg)
	case "cleanup":
		b.handleCleanup(ctx, msg)
	case "list_backups":
		b.handleListBackups(msg)

	case "debug":
		b.handleDebug(ctx, msg)
	case "stats":
		b.handleStats(ctx, msg)
	case "chart":
		b.handleChart(ctx, msg)
	}
}

// handleIncomingMessage turns a reply from a tracked worker into a response
// event. Everything else is ignored.
func (b *Bot) handleIncomingMessage(msg *tgbotapi.Message) {
	if !b.gate.IsTracked(msg.From.ID) || msg.ReplyToMessage == nil {
		return
	}
	original := msg.ReplyToMessage
	in := tracking.IncomingReply{
		ResponderID:       msg.From.ID,
		ResponderName:     msg.From.UserName,
		ResponseText:      msg.Text,
		ChatID:            msg.Chat.ID,
		ResponseTime:      b.clock.Now(),
		OriginalMessageID: original.MessageID,
		QuestionTime:      original.Time(),
	}
	if original.Text != "" {
		text := original.Text
		in.QuestionText = &text
	}
	if original.From != nil {
		id := original.From.ID
		in.OriginalSenderID = &id
		if original.From.UserName != "" {
			name := original.From.UserName
			in.OriginalSenderName = &name
		}
	}
	b.tracker.Capture(in)
}

func (b *Bot) requireAdmin(msg *tgbotapi.Message) bool {
	if b.gate.IsAdmin(msg.From.ID) {
		return true
	}
	b.sendMessage(msg.Chat.ID, "❌ This command requires admin privileges.")
	return false
}

func (b *Bot) requireWorker(msg *tgbotapi.Message) bool {
	if b.gate.IsWorker(msg.From.ID) {
		return true
	}
	b.sendMessage(msg.Chat.ID, "❌ This command is only available to tracked workers and admins.")
	return false
}

// userIDArg parses the first command argument as a user ID and replies with
// usage text when it is missing or malformed.
func (b *Bot) userIDArg(msg *tgbotapi.Message, missing string) (int64, bool) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.sendMessage(msg.Chat.ID, missing)
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(msg.Chat.ID, "❌ Please provide a valid user ID (number).")
		return 0, false
	}
	return id, true
}

func (b *Bot) handleMyID(msg *tgbotapi.Message) {
	username := msg.From.UserName
	if username == "" {
		username = "None"
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("Your Telegram ID is: %d\nUsername: @%s\nFull name: %s",
		msg.From.ID, username, fullName(msg.From)))
}

func (b *Bot) handleAddAdmin(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	id, ok := b.userIDArg(msg, "Please provide a user ID to add as admin.")
	if !ok {
		return
	}
	out, err := b.gate.Promote(id)
	if err != nil {
		b.fail(msg, err, "add admin")
		return
	}
	if out == access.AlreadyAdmin {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d is already an admin.", id))
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ User %d added as admin.", id))
}

func (b *Bot) handleRemoveAdmin(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	id, ok := b.userIDArg(msg, "Please provide a user ID to remove from admins.")
	if !ok {
		return
	}
	out, err := b.gate.Demote(id)
	if err != nil {
		b.fail(msg, err, "remove admin")
		return
	}
	if out == access.NotAdmin {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ User %d is not an admin.", id))
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ User %d removed from admins.", id))
}

func (b *Bot) handleAddUser(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	id, ok := b.userIDArg(msg, "Please provide a user ID to add.")
	if !ok {
		return
	}
	out, err := b.gate.AddWorker(id)
	if err != nil {
		b.fail(msg, err, "add user")
		return
	}
	switch out {
	case access.AlreadyAdmin:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("⚠️ User %d is an admin and already has all permissions.", id))
	case access.AlreadyWorker:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d is already in tracking list.", id))
	default:
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ User %d added to tracking list.", id))
	}
}

func (b *Bot) handleRemoveUser(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	id, ok := b.userIDArg(msg, "Please provide a user ID to remove.")
	if !ok {
		return
	}
	out, err := b.gate.RemoveWorker(id)
	if err != nil {
		b.fail(msg, err, "remove user")
		return
	}
	if out == access.NotWorker {
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("❌ User %d not found in tracking list.", id))
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ User %d removed from tracking list.", id))
}

func (b *Bot) handleListAdmins(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	ids, err := b.gate.Admins()
	if err != nil {
		b.fail(msg, err, "list admins")
		return
	}
	if len(ids) == 0 {
		b.sendMessage(msg.Chat.ID, "📝 No admin users configured.")
		return
	}
	b.sendMessage(msg.Chat.ID, "👑 Admin users:\n"+b.userList(msg.Chat.ID, ids))
}

func (b *Bot) handleListUsers(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	ids, err := b.gate.Workers()
	if err != nil {
		b.fail(msg, err, "list users")
		return
	}
	if len(ids) == 0 {
		b.sendMessage(msg.Chat.ID, "📝 No users are currently being tracked.")
		return
	}
	b.sendMessage(msg.Chat.ID, "📋 Currently tracking these users:\n"+b.userList(msg.Chat.ID, ids))
}

func (b *Bot) userList(chatID int64, ids []int64) string {
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		if name := b.displayName(chatID, id); name != "" {
			lines = append(lines, fmt.Sprintf("• %d (%s)", id, name))
			continue
		}
		lines = append(lines, fmt.Sprintf("• %d", id))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	events, err := b.tracker.FlushAndLoad(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("pre-export save failed")
		b.sendMessage(msg.Chat.ID, "❌ Error saving pending responses before export.")
		return
	}
	if len(events) == 0 {
		b.sendMessage(msg.Chat.ID, "No response data available.")
		return
	}
	if err := b.exporter.Write(ctx, events); err != nil {
		b.log.Error().Err(err).Msg("export failed")
		b.sendMessage(msg.Chat.ID, "❌ Export failed. Check logs for details.")
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Export complete:\n• Responses: %d\n• File: %s", len(events), b.exporter.Path()))
}

func (b *Bot) handleCleanup(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	days := b.cleanupDays
	if args := strings.Fields(msg.CommandArguments()); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			b.sendMessage(msg.Chat.ID, "❌ Please provide a valid number of days.")
			return
		}
		days = n
	}
	res, err := b.tracker.Cleanup(ctx, days)
	if errors.Is(err, tracking.ErrBackupFailed) {
		b.sendMessage(msg.Chat.ID, "❌ Cleanup aborted: backup creation failed")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Msg("cleanup failed")
		b.sendMessage(msg.Chat.ID, "❌ Error during cleanup. Check logs for details.")
		return
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Cleanup complete:\n• Removed %d old responses\n• Kept %d responses\n• Backup created",
		res.Removed, res.Kept))
}

func (b *Bot) handleListBackups(msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	var lines []string
	for _, ext := range b.backups.Extensions() {
		snaps, err := b.backups.List(ext)
		if err != nil {
			b.fail(msg, err, "list backups")
			return
		}
		if len(snaps) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n%s Backups:", strings.ToUpper(ext)))
		for i, s := range snaps {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("• %s (%s)", s.Name, b.clock.In(s.ModTime).Format("2006-01-02 15:04:05")))
		}
		lines = append(lines, fmt.Sprintf("Total %s backups: %d", ext, len(snaps)))
	}
	if len(lines) == 0 {
		b.sendMessage(msg.Chat.ID, "No backups found.")
		return
	}
	b.sendMessage(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (b *Bot) handleDebug(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireWorker(msg) {
		return
	}
	user := msg.From
	now := b.clock.Now()
	username := user.UserName
	if username == "" {
		username = "None"
	}
	lines := []string{
		"🔍 Debug Information:",
		"\n👤 Your Information:",
		fmt.Sprintf("• ID: %d", user.ID),
		fmt.Sprintf("• Username: @%s", username),
		fmt.Sprintf("• Full name: %s", fullName(user)),
		fmt.Sprintf("• Current time: %s", b.clock.Format(now)),
		fmt.Sprintf("• Time zone: %s", b.clock.ZoneName()),
	}

	var roles []string
	if b.gate.IsAdmin(user.ID) {
		roles = append(roles, "Admin")
	}
	if b.gate.IsTracked(user.ID) {
		roles = append(roles, "Worker")
	}
	lines = append(lines,
		fmt.Sprintf("\n🎭 Your Roles: %s", strings.Join(roles, ", ")),
		fmt.Sprintf("• Permissions: %s", strings.Join(b.gate.Permissions(user.ID), ", ")),
	)

	if reply := msg.ReplyToMessage; reply != nil {
		sender := "Unknown"
		if reply.From != nil && reply.From.UserName != "" {
			sender = reply.From.UserName
		}
		replyTime := b.clock.In(reply.Time())
		lines = append(lines,
			"\n💬 Reply Context:",
			fmt.Sprintf("• Original message ID: %d", reply.MessageID),
			fmt.Sprintf("• Original sender: @%s", sender),
			fmt.Sprintf("• Original time: %s", b.clock.Format(replyTime)),
			fmt.Sprintf("• Time since original: %s", analytics.FormatDelay(now.Sub(replyTime).Seconds())),
		)
	}

	events, err := b.tracker.FlushAndLoad(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("debug: statistics unavailable")
	} else if mine := analytics.FilterResponder(events, user.ID); len(mine) > 0 {
		s := analytics.Summarize(mine, now)
		lines = append(lines,
			"\n📊 Your Statistics:",
			fmt.Sprintf("• Total responses: %d", s.TotalResponses),
			fmt.Sprintf("• Average response time: %s", analytics.FormatDelay(s.AverageDelaySeconds)),
		)
	}
	b.sendMessage(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	isAdmin := b.gate.IsAdmin(userID)
	if !isAdmin && !b.gate.IsTracked(userID) {
		b.sendMessage(msg.Chat.ID, "❌ You don't have permission to view statistics.")
		return
	}
	events, err := b.tracker.FlushAndLoad(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("error generating stats")
		b.sendMessage(msg.Chat.ID, "❌ Error generating statistics. Please try again later.")
		return
	}
	data, title := events, "📊 Overall Statistics:"
	if !isAdmin {
		data, title = analytics.FilterResponder(events, userID), "📊 Your Statistics:"
	}
	if len(data) == 0 {
		b.sendMessage(msg.Chat.ID, "No response data available.")
		return
	}

	s := analytics.Summarize(data, b.clock.Now())
	lines := []string{
		title,
		fmt.Sprintf("• Total responses: %d", s.TotalResponses),
		fmt.Sprintf("• Average response time: %s", analytics.FormatDelay(s.AverageDelaySeconds)),
		fmt.Sprintf("• Responses today: %d", s.ResponsesToday),
	}
	if isAdmin {
		lines = append(lines,
			fmt.Sprintf("• Active workers: %d", s.ActiveWorkers),
			fmt.Sprintf("• Total tracked messages: %d", len(events)),
		)
	}
	b.sendMessage(msg.Chat.ID, strings.Join(lines, "\n"))
}

func (b *Bot) handleChart(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireWorker(msg) {
		return
	}
	events, err := b.tracker.FlushAndLoad(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("error generating chart")
		b.sendMessage(msg.Chat.ID, "❌ Error generating chart. Please try again later.")
		return
	}

	var png []byte
	var caption string
	if b.gate.IsAdmin(msg.From.ID) {
		png, err = analytics.RenderWorkerChart(analytics.WorkerAverages(events))
		caption = "📊 Average response times for all workers"
	} else {
		mine := analytics.FilterResponder(events, msg.From.ID)
		if len(mine) == 0 {
			b.sendMessage(msg.Chat.ID, "No response data available.")
			return
		}
		png, err = analytics.RenderDailyChart(analytics.DailyAverages(mine, b.clock.Now(), 7))
		caption = "📊 Your response times over the last 7 days"
	}
	if errors.Is(err, analytics.ErrNoData) {
		b.sendMessage(msg.Chat.ID, "No response data available.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Msg("error generating chart")
		b.sendMessage(msg.Chat.ID, "❌ Error generating chart. Please try again later.")
		return
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: "response_times.png", Bytes: png})
	photo.Caption = caption
	if _, err := b.s.Send(photo); err != nil {
		b.log.Error().Err(err).Msg("failed to send chart")
	}
}

// fail logs err and replies with the generic failure notice.
func (b *Bot) fail(msg *tgbotapi.Message, err error, op string) {
	b.log.Error().Err(err).Str("op", op).Int64("user_id", msg.From.ID).Msg("command failed")
	b.sendMessage(msg.Chat.ID, genericFailure)
}
