package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"dayplan/internal/planner"
	logx "dayplan/pkg/logx"
)

const handlerTimeout = 15 * time.Second

var btnDone = tele.Btn{Unique: "task_done"}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/today", b.handleToday)
	b.bot.Handle("/add", b.handleAdd)
	b.bot.Handle("/plan", b.handlePlan)
	b.bot.Handle("/gaps", b.handleGaps)
	b.bot.Handle("/done", b.handleDone)
	b.bot.Handle("/help", b.handleHelp)
	b.bot.Handle(&btnDone, b.handleDoneCallback)
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	chatID := c.Chat().ID

	code := strings.TrimSpace(c.Message().Payload)
	if code == "" {
		b.reply(ctx, chatID,
			"Hi! Link your account first: open the web app, request a link code, then send\n/start <code>")
		return nil
	}

	u, err := b.store.LinkTelegram(ctx, code, chatID)
	if errors.Is(err, planner.ErrNotFound) {
		b.reply(ctx, chatID, "That code is unknown or already used. Request a fresh one in the web app.")
		return nil
	}
	if err != nil {
		b.log.Error("link failed", logx.Int64("chat_id", chatID), logx.Any("err", err))
		b.reply(ctx, chatID, "Something went wrong, try again later.")
		return nil
	}
	b.log.Info("chat linked", logx.Int64("chat_id", chatID), logx.String("user_id", u.ID))
	b.reply(ctx, chatID, "Linked! Send /today to see your day or /help for all commands.")
	return nil
}

func (b *Bot) handleHelp(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	b.reply(ctx, c.Chat().ID, helpText)
	return nil
}

const helpText = `/today - today's schedule and important backlog
/add <title> - quick backlog task (30 min, normal priority)
/plan - fill today's free slots from the backlog
/gaps - today's free slots
/done - mark a task done
/help - this list`

func (b *Bot) handleToday(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return nil
	}

	from, to := dayBounds(b.today(), b.location())
	tasks, err := b.store.ListPlannedBetween(ctx, u.ID, from, to)
	if err != nil {
		return b.replyErr(ctx, c, "load today", err)
	}
	backlog, err := b.store.ListBacklogTodo(ctx, u.ID)
	if err != nil {
		return b.replyErr(ctx, c, "load backlog", err)
	}
	b.reply(ctx, c.Chat().ID, formatDay(tasks, backlog, b.location()))
	return nil
}

func (b *Bot) handleAdd(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return nil
	}

	title := strings.TrimSpace(c.Message().Payload)
	if title == "" {
		b.reply(ctx, c.Chat().ID, "Usage: /add <title>")
		return nil
	}

	task, err := b.plan.CreateTask(ctx, u.ID, planner.TaskInput{
		Title:           title,
		Priority:        planner.PriorityNormal,
		DurationMinutes: 30,
	})
	if err != nil {
		if planner.IsValidation(err) {
			b.reply(ctx, c.Chat().ID, "Can't add that: "+err.Error())
			return nil
		}
		return b.replyErr(ctx, c, "create task", err)
	}
	b.reply(ctx, c.Chat().ID, "Added to backlog: "+task.Title+" (30 min). Run /plan to slot it in.")
	return nil
}

func (b *Bot) handlePlan(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return nil
	}

	res, err := b.plan.AutoPlan(ctx, u.ID, b.today())
	if err != nil {
		return b.replyErr(ctx, c, "auto-plan", err)
	}
	b.reply(ctx, c.Chat().ID, formatPlanResult(res))
	return nil
}

func (b *Bot) handleGaps(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return nil
	}

	gaps, err := b.plan.FindGaps(ctx, u.ID, b.today())
	if err != nil {
		return b.replyErr(ctx, c, "find gaps", err)
	}
	b.reply(ctx, c.Chat().ID, formatGaps(gaps, b.location()))
	return nil
}

// handleDone sends the inline keyboard directly (the notifier queue only
// carries plain text).
func (b *Bot) handleDone(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return nil
	}

	from, to := dayBounds(b.today(), b.location())
	tasks, err := b.store.ListPlannedBetween(ctx, u.ID, from, to)
	if err != nil {
		return b.replyErr(ctx, c, "load today", err)
	}

	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, t := range tasks {
		if t.Status == planner.StatusDone || t.StartAt == nil {
			continue
		}
		label := fmtClock(*t.StartAt, b.location()) + " " + t.Title
		rows = append(rows, markup.Row(markup.Data(label, btnDone.Unique, t.ID)))
	}
	if len(rows) == 0 {
		b.reply(ctx, c.Chat().ID, "Nothing open today.")
		return nil
	}
	markup.Inline(rows...)
	return c.Send("Which task is done?", markup)
}

func (b *Bot) handleDoneCallback(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	u, ok := b.resolveUser(ctx, c)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Not linked."})
	}

	taskID := strings.TrimSpace(c.Data())
	if taskID == "" {
		return c.Respond(&tele.CallbackResponse{})
	}
	task, err := b.store.SetStatus(ctx, u.ID, taskID, planner.StatusDone)
	if errors.Is(err, planner.ErrNotFound) {
		return c.Respond(&tele.CallbackResponse{Text: "Task not found."})
	}
	if err != nil {
		b.log.Error("set done failed", logx.String("task_id", taskID), logx.Any("err", err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
	}
	if err := c.Respond(&tele.CallbackResponse{Text: "Done!"}); err != nil {
		return err
	}
	b.reply(ctx, c.Chat().ID, "✅ "+task.Title)
	return nil
}

func (b *Bot) resolveUser(ctx context.Context, c tele.Context) (u User, ok bool) {
	chatID := c.Chat().ID
	su, err := b.store.UserByChatID(ctx, chatID)
	if errors.Is(err, planner.ErrNotFound) {
		b.reply(ctx, chatID, "This chat isn't linked yet. Send /start <code> from the web app first.")
		return User{}, false
	}
	if err != nil {
		b.log.Error("user lookup failed", logx.Int64("chat_id", chatID), logx.Any("err", err))
		b.reply(ctx, chatID, "Something went wrong, try again later.")
		return User{}, false
	}
	return User{ID: su.ID, ChatID: chatID}, true
}

// User is the resolved command sender.
type User struct {
	ID     string
	ChatID int64
}

func (b *Bot) replyErr(ctx context.Context, c tele.Context, op string, err error) error {
	b.log.Error(op+" failed", logx.Int64("chat_id", c.Chat().ID), logx.Any("err", err))
	b.reply(ctx, c.Chat().ID, "Something went wrong, try again later.")
	return nil
}

// dayBounds returns the [midnight, midnight+24h) range of date in loc.
func dayBounds(date time.Time, loc *time.Location) (from, to time.Time) {
	d := date.In(loc)
	from = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return from, from.Add(24 * time.Hour)
}
