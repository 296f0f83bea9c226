// Package notify fans a move notification out to the users bound to its
// endpoints. Delivery is per-recipient and best-effort: one failed recipient
// never aborts the rest, and the caller gets back counts instead of errors.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/olehk/movebot/internal/model"
)

// Kind selects which acknowledgement buttons accompany a notification.
type Kind string

const (
	// KindSource prompts the sending point to confirm the handoff.
	KindSource Kind = "source"
	// KindDestination prompts the receiving point to confirm receipt.
	KindDestination Kind = "destination"
)

// Action is a labeled button attached to a delivered message. Data is the
// opaque payload the channel reports back when the button is pressed.
type Action struct {
	Label string
	Data  string
}

// Channel is the outbound messaging surface. Grouped photo delivery cannot
// carry buttons in the target channel, hence the separate SendActions.
type Channel interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, ref, caption string, actions []Action) error
	SendPhotoGroup(ctx context.Context, chatID int64, refs []string, caption string) error
	SendActions(ctx context.Context, chatID int64, text string, actions []Action) error
}

// Delivery reports best-effort fan-out results for one endpoint.
type Delivery struct {
	Succeeded int `json:"succeeded"`
	Attempted int `json:"attempted"`
}

// Notifier delivers move notifications over a Channel.
type Notifier struct {
	ch Channel
}

// New creates a Notifier over the given channel.
func New(ch Channel) *Notifier {
	return &Notifier{ch: ch}
}

// Notify delivers the caption and photo set to every recipient, each with
// the action buttons for kind. A single photo is sent directly with the
// buttons attached; multiple photos go out as a group followed by one
// separate button message.
func (n *Notifier) Notify(ctx context.Context, recipients []int64, photos []string, caption string, moveID int64, kind Kind) Delivery {
	actions := ActionsFor(kind, moveID)
	d := Delivery{Attempted: len(recipients)}

	for _, chatID := range recipients {
		if err := n.deliver(ctx, chatID, photos, caption, actions); err != nil {
			slog.Warn("notification delivery failed",
				"move", moveID, "recipient", chatID, "error", err)
			continue
		}
		d.Succeeded++
	}
	return d
}

func (n *Notifier) deliver(ctx context.Context, chatID int64, photos []string, caption string, actions []Action) error {
	switch len(photos) {
	case 0:
		return n.ch.SendActions(ctx, chatID, caption, actions)
	case 1:
		return n.ch.SendPhoto(ctx, chatID, photos[0], caption, actions)
	default:
		if err := n.ch.SendPhotoGroup(ctx, chatID, photos, caption); err != nil {
			return err
		}
		return n.ch.SendActions(ctx, chatID, "Confirm with the buttons below:", actions)
	}
}

// Callback actions reported back by the channel.
const (
	ActionHanded     = "handed"
	ActionReceived   = "received"
	ActionCorrection = "corr"
)

// ActionsFor returns the button set for a notification kind.
func ActionsFor(kind Kind, moveID int64) []Action {
	correction := Action{Label: "Report a problem", Data: CallbackData(ActionCorrection, moveID)}
	if kind == KindSource {
		return []Action{
			{Label: "Confirm handed over", Data: CallbackData(ActionHanded, moveID)},
			correction,
		}
	}
	return []Action{
		{Label: "Confirm received", Data: CallbackData(ActionReceived, moveID)},
		correction,
	}
}

// CallbackData encodes an action button payload.
func CallbackData(action string, moveID int64) string {
	return fmt.Sprintf("mv:%s:%d", action, moveID)
}

// ParseCallback decodes an action button payload.
func ParseCallback(data string) (action string, moveID int64, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "mv" {
		return "", 0, fmt.Errorf("unrecognized callback data %q", data)
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad move id in callback data %q", data)
	}
	return parts[1], id, nil
}

// Caption renders the notification text for a move.
func Caption(m *model.Move) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Move #%d (V%d)\n", m.ID, m.InvoiceVersion)
	fmt.Fprintf(&b, "Status: %s\n", m.Status)
	fmt.Fprintf(&b, "From: %s\n", orDash(m.FromPointName))
	fmt.Fprintf(&b, "To: %s", orDash(m.ToPointName))
	if m.Note != "" {
		fmt.Fprintf(&b, "\n\nNote: %s", m.Note)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
