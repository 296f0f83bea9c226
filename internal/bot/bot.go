package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/olehk/movebot/internal/engine"
	"github.com/olehk/movebot/internal/model"
	"github.com/olehk/movebot/internal/notify"
	"github.com/olehk/movebot/internal/store"
)

// correctionDraft tracks a correction dialog in progress: the user pressed
// the correction button and the bot is waiting for a note, then a photo.
type correctionDraft struct {
	moveID       int64
	note         string
	awaitingNote bool
}

// Bot routes Telegram updates into the lifecycle engine.
type Bot struct {
	api    *tgbotapi.BotAPI
	store  store.Store
	engine *engine.Engine
	admins map[int64]bool

	// Updates are handled one at a time, so the dialog state needs no lock.
	drafts map[int64]*correctionDraft
}

// New creates a Bot. admins is the allow-list of operator chat IDs.
func New(api *tgbotapi.BotAPI, st store.Store, eng *engine.Engine, admins []int64) *Bot {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &Bot{
		api:    api,
		store:  st,
		engine: eng,
		admins: set,
		drafts: make(map[int64]*correctionDraft),
	}
}

// Run consumes updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	slog.Info("bot update loop started", "account", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if draft, ok := b.drafts[chatID]; ok && !msg.IsCommand() {
		b.continueCorrection(ctx, msg, draft)
		return
	}

	switch msg.Command() {
	case "start":
		if err := b.store.UpsertUser(ctx, chatID, msg.From.UserName, msg.From.FirstName+" "+msg.From.LastName, model.RolePoint); err != nil {
			slog.Error("upserting user", "chat", chatID, "error", err)
		}
		b.reply(chatID, "Hi! Use /bind to link this chat to your point. You will then receive move notifications with confirmation buttons.")
	case "whoami":
		b.reply(chatID, fmt.Sprintf("Your chat ID: %d", chatID))
	case "bind":
		b.startBinding(ctx, chatID)
	case "cancel":
		delete(b.drafts, chatID)
		b.reply(chatID, "Canceled.")
	}
}

// startBinding opens the city picker.
func (b *Bot) startBinding(ctx context.Context, chatID int64) {
	cities, err := b.store.ListCities(ctx)
	if err != nil {
		slog.Error("listing cities", "error", err)
		b.reply(chatID, "Something went wrong, try again later.")
		return
	}
	if len(cities) == 0 {
		b.reply(chatID, "No cities registered yet. Ask your operator to add them.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cities))
	for _, c := range cities {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Name, fmt.Sprintf("bind:city:%d", c.ID))))
	}
	out := tgbotapi.NewMessage(chatID, "Pick your city:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(out); err != nil {
		slog.Warn("sending city picker", "chat", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.From.ID

	switch {
	case strings.HasPrefix(data, "bind:city:"):
		b.pickCity(ctx, cb, strings.TrimPrefix(data, "bind:city:"))
	case strings.HasPrefix(data, "bind:point:"):
		b.pickPoint(ctx, cb, strings.TrimPrefix(data, "bind:point:"))
	default:
		action, moveID, err := notify.ParseCallback(data)
		if err != nil {
			slog.Warn("unrecognized callback", "chat", chatID, "data", data)
			b.answer(cb, "")
			return
		}
		switch action {
		case notify.ActionHanded:
			b.acknowledge(ctx, cb, moveID, true)
		case notify.ActionReceived:
			b.acknowledge(ctx, cb, moveID, false)
		case notify.ActionCorrection:
			b.startCorrection(ctx, cb, moveID)
		}
	}
}

func (b *Bot) pickCity(ctx context.Context, cb *tgbotapi.CallbackQuery, arg string) {
	cityID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.answer(cb, "")
		return
	}

	points, err := b.store.ListPoints(ctx, cityID)
	if err != nil {
		slog.Error("listing points", "city", cityID, "error", err)
		b.alert(cb, "Something went wrong, try again later.")
		return
	}
	if len(points) == 0 {
		b.alert(cb, "No points in this city yet.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(points))
	for _, p := range points {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, fmt.Sprintf("bind:point:%d", p.ID))))
	}
	b.editText(cb, "Pick your point:", tgbotapi.NewInlineKeyboardMarkup(rows...))
	b.answer(cb, "")
}

func (b *Bot) pickPoint(ctx context.Context, cb *tgbotapi.CallbackQuery, arg string) {
	pointID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		b.answer(cb, "")
		return
	}
	chatID := cb.From.ID

	if err := b.store.UpsertUser(ctx, chatID, cb.From.UserName, cb.From.FirstName+" "+cb.From.LastName, model.RolePoint); err != nil {
		slog.Error("upserting user", "chat", chatID, "error", err)
	}
	if err := b.store.LinkUserToPoint(ctx, chatID, pointID); err != nil {
		slog.Error("linking user to point", "chat", chatID, "point", pointID, "error", err)
		b.alert(cb, "Something went wrong, try again later.")
		return
	}

	point, err := b.store.GetPoint(ctx, pointID)
	name := fmt.Sprintf("#%d", pointID)
	if err == nil {
		name = point.Name
	}
	b.editText(cb, fmt.Sprintf("Linked to %s. You will now receive this point's moves.", name), tgbotapi.InlineKeyboardMarkup{})
	b.answer(cb, "")
	slog.Info("user bound to point", "chat", chatID, "point", pointID)

	report := fmt.Sprintf("User @%s (%d) linked to point %s.", cb.From.UserName, chatID, name)
	for adminID := range b.admins {
		if _, err := b.api.Send(tgbotapi.NewMessage(adminID, report)); err != nil {
			slog.Warn("notifying admin of binding", "admin", adminID, "error", err)
		}
	}
}

// acknowledge handles the handed/received buttons.
func (b *Bot) acknowledge(ctx context.Context, cb *tgbotapi.CallbackQuery, moveID int64, handed bool) {
	chatID := cb.From.ID

	var (
		res *engine.AckResult
		err error
	)
	if handed {
		res, err = b.engine.MarkHanded(ctx, moveID, chatID)
	} else {
		res, err = b.engine.MarkReceived(ctx, moveID, chatID)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		b.alert(cb, "Move not found.")
		return
	case errors.Is(err, engine.ErrUnauthorized):
		b.alert(cb, "This move is not assigned to your point.")
		return
	case err != nil:
		slog.Error("acknowledging move", "move", moveID, "chat", chatID, "error", err)
		b.alert(cb, "Something went wrong, try again later.")
		return
	}

	if res.Already {
		b.alert(cb, "You already confirmed this.")
		return
	}

	// Strip the confirm button, keep the correction one.
	b.stripConfirmButton(cb, moveID)

	if handed {
		b.alert(cb, "Recorded: handed over.")
		b.tellOperator(ctx, res.Move, handedReport(res.Move))
	} else {
		b.alert(cb, "Recorded: received.")
		b.tellOperator(ctx, res.Move, receivedReport(res.Move))
	}

	if res.Done {
		b.tellOperator(ctx, res.Move, doneReport(res.Move))
	}
}

// startCorrection begins the note-then-photo dialog.
func (b *Bot) startCorrection(ctx context.Context, cb *tgbotapi.CallbackQuery, moveID int64) {
	chatID := cb.From.ID

	if _, err := b.store.GetMove(ctx, moveID); errors.Is(err, store.ErrNotFound) {
		b.alert(cb, "Move not found.")
		return
	} else if err != nil {
		b.alert(cb, "Something went wrong, try again later.")
		return
	}

	b.drafts[chatID] = &correctionDraft{moveID: moveID, awaitingNote: true}
	b.reply(chatID, fmt.Sprintf("Correction for move #%d.\nDescribe the problem (missing items, extra items, wrong goods):", moveID))
	b.answer(cb, "")
}

func (b *Bot) continueCorrection(ctx context.Context, msg *tgbotapi.Message, draft *correctionDraft) {
	chatID := msg.Chat.ID

	if draft.awaitingNote {
		note := strings.TrimSpace(msg.Text)
		if note == "" {
			b.reply(chatID, "Describe the problem in text first.")
			return
		}
		draft.note = note
		draft.awaitingNote = false
		b.reply(chatID, "Now send a photo, or \"-\" to skip.")
		return
	}

	var photoRef string
	switch {
	case strings.TrimSpace(msg.Text) == "-":
		photoRef = ""
	case len(msg.Photo) > 0:
		photoRef = msg.Photo[len(msg.Photo)-1].FileID
	default:
		b.reply(chatID, "Send a photo or \"-\".")
		return
	}

	delete(b.drafts, chatID)

	err := b.engine.RequestCorrection(ctx, draft.moveID, chatID, draft.note, photoRef)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.reply(chatID, "Move not found.")
		return
	case errors.Is(err, engine.ErrUnauthorized):
		b.reply(chatID, "This move is not assigned to your point.")
		return
	case err != nil:
		slog.Error("requesting correction", "move", draft.moveID, "chat", chatID, "error", err)
		b.reply(chatID, "Something went wrong, try again later.")
		return
	}

	m, err := b.store.GetMove(ctx, draft.moveID)
	if err == nil {
		b.tellOperatorCorrection(ctx, m, photoRef)
	}

	b.reply(chatID, "Correction sent to the operator. Expect an updated invoice.")
}

// stripConfirmButton rewrites the pressed message's keyboard so only the
// correction button remains. Best effort: grouped-photo messages cannot be
// edited and that is fine.
func (b *Bot) stripConfirmButton(cb *tgbotapi.CallbackQuery, moveID int64) {
	if cb.Message == nil {
		return
	}
	kb := keyboard([]notify.Action{
		{Label: "Report a problem", Data: notify.CallbackData(notify.ActionCorrection, moveID)},
	})
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, kb)
	if _, err := b.api.Request(edit); err != nil {
		slog.Debug("editing keyboard", "move", moveID, "error", err)
	}
}

// tellOperator sends a status report to the move's operator, best effort.
func (b *Bot) tellOperator(_ context.Context, m *model.Move, text string) {
	opID := m.OperatorID
	if opID == 0 {
		opID = m.CreatedBy
	}
	if opID == 0 {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(opID, text)); err != nil {
		slog.Warn("notifying operator", "move", m.ID, "operator", opID, "error", err)
	}
}

// tellOperatorCorrection reports a correction to the operator, with the
// evidence photo attached when one was supplied.
func (b *Bot) tellOperatorCorrection(_ context.Context, m *model.Move, photoRef string) {
	opID := m.OperatorID
	if opID == 0 {
		opID = m.CreatedBy
	}
	if opID == 0 {
		return
	}

	text := correctionReport(m)
	var err error
	if photoRef != "" {
		photo := tgbotapi.NewPhoto(opID, tgbotapi.FileID(photoRef))
		photo.Caption = text
		_, err = b.api.Send(photo)
	} else {
		_, err = b.api.Send(tgbotapi.NewMessage(opID, text))
	}
	if err != nil {
		slog.Warn("notifying operator of correction", "move", m.ID, "operator", opID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("sending reply", "chat", chatID, "error", err)
	}
}

func (b *Bot) answer(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		slog.Debug("answering callback", "error", err)
	}
}

func (b *Bot) alert(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(cb.ID, text)); err != nil {
		slog.Debug("answering callback", "error", err)
	}
}

func (b *Bot) editText(cb *tgbotapi.CallbackQuery, text string, kb tgbotapi.InlineKeyboardMarkup) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
	if len(kb.InlineKeyboard) > 0 {
		edit.ReplyMarkup = &kb
	}
	if _, err := b.api.Send(edit); err != nil {
		slog.Debug("editing message", "error", err)
	}
}

func handedReport(m *model.Move) string {
	return fmt.Sprintf("Source %s confirmed the handoff.\nBy: %s\nAt: %s\nMove #%d",
		pointLabel(m.FromPointName), actorLabel(m.HandedBy), timeLabel(m.HandedAt), m.ID)
}

func receivedReport(m *model.Move) string {
	return fmt.Sprintf("Destination %s confirmed receipt.\nBy: %s\nAt: %s\nMove #%d",
		pointLabel(m.ToPointName), actorLabel(m.ReceivedBy), timeLabel(m.ReceivedAt), m.ID)
}

func doneReport(m *model.Move) string {
	return fmt.Sprintf("Move #%d confirmed by both points.\nSource %s: %s at %s\nDestination %s: %s at %s",
		m.ID,
		pointLabel(m.FromPointName), actorLabel(m.HandedBy), timeLabel(m.HandedAt),
		pointLabel(m.ToPointName), actorLabel(m.ReceivedBy), timeLabel(m.ReceivedAt))
}

func correctionReport(m *model.Move) string {
	return fmt.Sprintf("Correction raised on move #%d.\nBy: %s\nNote: %s\nFrom: %s\nTo: %s\n\nSend a new invoice to resolve it.",
		m.ID, actorLabel(m.CorrectionBy), m.CorrectionNote,
		pointLabel(m.FromPointName), pointLabel(m.ToPointName))
}

func pointLabel(name string) string {
	if name == "" {
		return "—"
	}
	return name
}

func actorLabel(id *int64) string {
	if id == nil {
		return "—"
	}
	return strconv.FormatInt(*id, 10)
}

func timeLabel(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.Format("2006-01-02 15:04")
}
