// Package telegram is the long-poll bot transport. Commands are thin wrappers
// over the planner and the store; replies are queued through the notifier so
// bursts stay within the Bot API limits.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration // default: 10s
}

// Store is the slice of the storage layer the bot needs.
type Store interface {
	UserByChatID(ctx context.Context, chatID int64) (storage.User, error)
	LinkTelegram(ctx context.Context, code string, chatID int64) (storage.User, error)
	ListPlannedBetween(ctx context.Context, userID string, from, to time.Time) ([]planner.Task, error)
	ListBacklogTodo(ctx context.Context, userID string) ([]planner.Task, error)
	SetStatus(ctx context.Context, userID, id string, status planner.Status) (planner.Task, error)
}

// Planner is the scheduling surface the bot calls into.
type Planner interface {
	CreateTask(ctx context.Context, userID string, in planner.TaskInput) (planner.Task, error)
	AutoPlan(ctx context.Context, userID string, date time.Time) (planner.PlanResult, error)
	FindGaps(ctx context.Context, userID string, date time.Time) ([]planner.Gap, error)
}

// Queue is the outbound message pipeline (implemented by notify.Service).
type Queue interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Bot struct {
	log      logx.Logger
	bot      *tele.Bot
	store    Store
	plan     Planner
	windowFn func() planner.Window

	queueMu sync.Mutex
	queue   Queue

	runMu   sync.Mutex
	running bool
	done    chan struct{}
}

func New(cfg Config, store Store, plan Planner, windowFn func() planner.Window, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{log: log, bot: tb, store: store, plan: plan, windowFn: windowFn}
	b.registerHandlers()
	return b, nil
}

// SetQueue installs the notifier. Until set, replies go out directly.
func (b *Bot) SetQueue(q Queue) {
	b.queueMu.Lock()
	b.queue = q
	b.queueMu.Unlock()
}

// SendText implements notify.Sender: the raw, unqueued send path.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

// reply routes a plain-text reply through the queue when one is installed.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.queueMu.Lock()
	q := b.queue
	b.queueMu.Unlock()
	if q != nil {
		if err := q.Send(ctx, chatID, text); err != nil {
			b.log.Warn("reply enqueue failed", logx.Int64("chat_id", chatID), logx.Any("err", err))
		}
		return
	}
	if err := b.SendText(ctx, chatID, text); err != nil {
		b.log.Warn("reply send failed", logx.Int64("chat_id", chatID), logx.Any("err", err))
	}
}

func (b *Bot) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return
	}
	b.running = true
	b.done = make(chan struct{})
	done := b.done
	b.runMu.Unlock()

	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	go func() {
		defer close(done)
		b.log.Info("polling started")
		// Blocks until Stop().
		b.bot.Start()
		b.log.Info("polling stopped")
	}()
}

func (b *Bot) Stop(ctx context.Context) {
	b.runMu.Lock()
	running := b.running
	done := b.done
	b.running = false
	b.runMu.Unlock()
	if !running {
		return
	}
	// telebot Stop is expected to be fast; run it async just in case.
	go b.bot.Stop()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			b.log.Warn("telegram stop timed out")
		}
	}
}

// today returns the current day in the planner's working timezone.
func (b *Bot) today() time.Time {
	loc := b.windowFn().Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}

func (b *Bot) location() *time.Location {
	loc := b.windowFn().Location
	if loc == nil {
		loc = time.Local
	}
	return loc
}
