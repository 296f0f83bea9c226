// Package bot is the Telegram surface: it adapts the bot API to the
// notification channel contract and routes inbound commands and button
// presses into the lifecycle engine.
package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/olehk/movebot/internal/notify"
)

// Channel implements notify.Channel over the Telegram bot API. Photo refs
// are Telegram file IDs.
type Channel struct {
	api *tgbotapi.BotAPI
}

// NewChannel wraps an authorized bot API client.
func NewChannel(api *tgbotapi.BotAPI) *Channel {
	return &Channel{api: api}
}

func (c *Channel) SendText(_ context.Context, chatID int64, text string) error {
	_, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

func (c *Channel) SendPhoto(_ context.Context, chatID int64, ref, caption string, actions []notify.Action) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(ref))
	photo.Caption = caption
	if len(actions) > 0 {
		photo.ReplyMarkup = keyboard(actions)
	}
	if _, err := c.api.Send(photo); err != nil {
		return fmt.Errorf("sending photo: %w", err)
	}
	return nil
}

func (c *Channel) SendPhotoGroup(_ context.Context, chatID int64, refs []string, caption string) error {
	media := make([]interface{}, 0, len(refs))
	for i, ref := range refs {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileID(ref))
		if i == 0 {
			photo.Caption = caption
		}
		media = append(media, photo)
	}

	if _, err := c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return fmt.Errorf("sending media group: %w", err)
	}
	return nil
}

func (c *Channel) SendActions(_ context.Context, chatID int64, text string, actions []notify.Action) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard(actions)
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("sending action message: %w", err)
	}
	return nil
}

// keyboard lays the actions out one button per row.
func keyboard(actions []notify.Action) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
