package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"reply-tracker/internal/access"
	"reply-tracker/internal/backup"
	"reply-tracker/internal/clock"
	"reply-tracker/internal/export"
	"reply-tracker/internal/storage"
	"reply-tracker/internal/tracking"
)

const (
	adminID  = int64(1)
	workerID = int64(2)
	chatID   = int64(-100)
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	photos  []tgbotapi.PhotoConfig
	members map[int64]*tgbotapi.User
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m.Text)
	case tgbotapi.PhotoConfig:
		f.photos = append(f.photos, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	if u, ok := f.members[cfg.UserID]; ok {
		return tgbotapi.ChatMember{User: u}, nil
	}
	return tgbotapi.ChatMember{}, errors.New("user not found")
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	bot     *Bot
	fs      *fakeSender
	tracker *tracking.Tracker
	store   *storage.FileStore
	report  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()
	c := clock.New(clock.Settings{FixedOffsetHours: 2}, log)

	store, err := storage.NewFileStore(filepath.Join(dir, "data", "response_data.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	report := filepath.Join(dir, "data", "response_tracking.xlsx")
	reportLock := storage.NewFileLock(report, 0)
	backups, err := backup.New(filepath.Join(dir, "data", "backups"), []backup.Target{
		{Path: store.Path()},
		{Path: report, Lock: reportLock, Optional: true},
	}, backup.WithClock(c))
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	gate, err := access.Open(filepath.Join(dir, "config", "admin_users.json"), filepath.Join(dir, "config", "target_users.json"), log)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if _, err := gate.Seed([]int64{adminID}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := gate.AddWorker(workerID); err != nil {
		t.Fatalf("add worker: %v", err)
	}

	tracker := tracking.New(c, store, backups)
	fs := &fakeSender{members: map[int64]*tgbotapi.User{
		adminID: {ID: adminID, UserName: "boss"},
	}}
	b := newBot(fs, Deps{
		Gate:     gate,
		Tracker:  tracker,
		Exporter: export.New(report, reportLock, log),
		Backups:  backups,
		Clock:    c,
		Log:      log,
	})
	return &fixture{bot: b, fs: fs, tracker: tracker, store: store, report: report}
}

func command(from int64, text string) *tgbotapi.Message {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: from, UserName: "tester", FirstName: "Test", LastName: "User"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}
}

func replyFrom(from int64, askedAt time.Time) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: from, UserName: "worker"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      "on it",
		ReplyToMessage: &tgbotapi.Message{
			MessageID: 5,
			From:      &tgbotapi.User{ID: 900, UserName: "client"},
			Chat:      &tgbotapi.Chat{ID: chatID},
			Date:      int(askedAt.Unix()),
			Text:      "anyone?",
		},
	}
}

func (f *fixture) dispatch(msg *tgbotapi.Message) {
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1, Message: msg})
}

func TestIngestion_TracksRepliesFromWorkersOnly(t *testing.T) {
	f := newFixture(t)
	asked := time.Now().Add(-2 * time.Minute)

	f.dispatch(replyFrom(workerID, asked))
	if f.tracker.Pending() != 1 {
		t.Fatalf("worker reply not captured")
	}

	f.dispatch(replyFrom(adminID, asked))
	f.dispatch(replyFrom(777, asked))
	plain := replyFrom(workerID, asked)
	plain.ReplyToMessage = nil
	f.dispatch(plain)
	if f.tracker.Pending() != 1 {
		t.Fatalf("unexpected captures: pending=%d", f.tracker.Pending())
	}
	if len(f.fs.sent) != 0 {
		t.Fatalf("ingestion must not reply: %v", f.fs.sent)
	}

	events, err := f.tracker.FlushAndLoad(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ev := events[0]
	if ev.ResponderID != workerID || ev.OriginalMessageID != 5 || *ev.QuestionText != "anyone?" || *ev.OriginalSenderName != "client" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ResponseDelaySeconds < 119 {
		t.Fatalf("delay = %v", ev.ResponseDelaySeconds)
	}
}

func TestAdminCommands_RequireAdmin(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range []string{"/add_user 5", "/remove_admin 1", "/export", "/cleanup", "/list_backups"} {
		f.dispatch(command(workerID, cmd))
		if f.fs.last() != "❌ This command requires admin privileges." {
			t.Fatalf("%s: got %q", cmd, f.fs.last())
		}
	}
	f.dispatch(command(555, "/debug"))
	if !strings.Contains(f.fs.last(), "only available to tracked workers") {
		t.Fatalf("debug from stranger: %q", f.fs.last())
	}
}

func TestRoleCommands(t *testing.T) {
	f := newFixture(t)

	f.dispatch(command(adminID, "/add_user 42"))
	if f.fs.last() != "✅ User 42 added to tracking list." {
		t.Fatalf("add_user: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/add_user 42"))
	if f.fs.last() != "User 42 is already in tracking list." {
		t.Fatalf("duplicate add_user: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/add_user abc"))
	if f.fs.last() != "❌ Please provide a valid user ID (number)." {
		t.Fatalf("bad id: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/add_user"))
	if f.fs.last() != "Please provide a user ID to add." {
		t.Fatalf("missing id: %q", f.fs.last())
	}

	f.dispatch(command(adminID, "/add_admin 42"))
	if f.fs.last() != "✅ User 42 added as admin." {
		t.Fatalf("add_admin: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/add_user 42"))
	if !strings.Contains(f.fs.last(), "is an admin and already has all permissions") {
		t.Fatalf("add_user for admin: %q", f.fs.last())
	}

	f.dispatch(command(adminID, "/list_admins"))
	if f.fs.last() != "👑 Admin users:\n• 1 (@boss)\n• 42" {
		t.Fatalf("list_admins: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/list_users"))
	if f.fs.last() != "📋 Currently tracking these users:\n• 2" {
		t.Fatalf("list_users: %q", f.fs.last())
	}

	f.dispatch(command(adminID, "/remove_admin 42"))
	if f.fs.last() != "✅ User 42 removed from admins." {
		t.Fatalf("remove_admin: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/remove_user 42"))
	if f.fs.last() != "❌ User 42 not found in tracking list." {
		t.Fatalf("demoted admin must not be a worker: %q", f.fs.last())
	}
}

func TestExportAndCleanup(t *testing.T) {
	f := newFixture(t)

	f.dispatch(command(adminID, "/export"))
	if f.fs.last() != "No response data available." {
		t.Fatalf("empty export: %q", f.fs.last())
	}

	f.dispatch(replyFrom(workerID, time.Now().Add(-time.Minute)))
	f.dispatch(command(adminID, "/export"))
	if !strings.HasPrefix(f.fs.last(), "✅ Export complete:\n• Responses: 1") {
		t.Fatalf("export: %q", f.fs.last())
	}
	if _, err := os.Stat(f.report); err != nil {
		t.Fatalf("report missing: %v", err)
	}

	f.dispatch(command(adminID, "/cleanup x"))
	if f.fs.last() != "❌ Please provide a valid number of days." {
		t.Fatalf("bad days: %q", f.fs.last())
	}
	f.dispatch(command(adminID, "/cleanup 30"))
	if f.fs.last() != "✅ Cleanup complete:\n• Removed 0 old responses\n• Kept 1 responses\n• Backup created" {
		t.Fatalf("cleanup: %q", f.fs.last())
	}

	f.dispatch(command(adminID, "/list_backups"))
	out := f.fs.last()
	if !strings.Contains(out, ".JSON Backups:") || !strings.Contains(out, ".XLSX Backups:") || !strings.Contains(out, "Total .json backups: 1") {
		t.Fatalf("list_backups: %q", out)
	}
}

func TestStatsAndChart(t *testing.T) {
	f := newFixture(t)

	f.dispatch(command(workerID, "/stats"))
	if f.fs.last() != "No response data available." {
		t.Fatalf("empty stats: %q", f.fs.last())
	}
	f.dispatch(command(777, "/stats"))
	if f.fs.last() != "❌ You don't have permission to view statistics." {
		t.Fatalf("stranger stats: %q", f.fs.last())
	}

	f.dispatch(replyFrom(workerID, time.Now().Add(-90*time.Second)))
	f.dispatch(command(workerID, "/stats"))
	out := f.fs.last()
	if !strings.HasPrefix(out, "📊 Your Statistics:\n• Total responses: 1\n• Average response time: ") {
		t.Fatalf("worker stats: %q", out)
	}
	if strings.Contains(out, "Active workers") {
		t.Fatalf("worker sees admin totals: %q", out)
	}

	f.dispatch(command(adminID, "/stats"))
	if !strings.Contains(f.fs.last(), "• Active workers: 1\n• Total tracked messages: 1") {
		t.Fatalf("admin stats: %q", f.fs.last())
	}

	f.dispatch(command(adminID, "/chart"))
	if len(f.fs.photos) != 1 || f.fs.photos[0].Caption != "📊 Average response times for all workers" {
		t.Fatalf("admin chart not sent: %+v", f.fs.photos)
	}
}

func TestMyIDAndDebug(t *testing.T) {
	f := newFixture(t)
	f.dispatch(command(555, "/myid"))
	if f.fs.last() != "Your Telegram ID is: 555\nUsername: @tester\nFull name: Test User" {
		t.Fatalf("myid: %q", f.fs.last())
	}

	f.dispatch(command(workerID, "/debug"))
	out := f.fs.last()
	if !strings.Contains(out, "• ID: 2") || !strings.Contains(out, "🎭 Your Roles: Worker") || !strings.Contains(out, "• Time zone: UTC+02:00") {
		t.Fatalf("debug: %q", out)
	}
}
