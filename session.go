package main

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const (
	errBlocked      = "Forbidden: bot was blocked by the user"
	errDeactivated  = "Forbidden: user is deactivated"
	errChatNotFound = "Bad Request: chat not found"
	errKicked       = "Forbidden: bot was kicked from the supergroup chat"
	errNotMember    = "Forbidden: bot is not a member of the supergroup chat"
)

// Session wraps the bot transport. It is the only place aware of the
// Telegram API; everything above it sees the Sink contract.
type Session struct {
	bot        *tgbotapi.BotAPI
	chatTitles *TTLCache[int64, string]
}

func NewSession(token string, chatTitles *TTLCache[int64, string]) (*Session, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("bot auth: %w", err)
	}
	return &Session{bot: bot, chatTitles: chatTitles}, nil
}

func (session *Session) SendText(chatId int64, text string) DeliveryResult {
	message := tgbotapi.NewMessage(chatId, text)
	message.ParseMode = "markdown"
	message.DisableNotification = true
	_, err := session.bot.Send(message)
	return classify(err)
}

// SendItem sends one feed item, with its image when the item carries one.
// An image the transport rejects falls back to a plain text send.
func (session *Session) SendItem(chatId int64, item *Item, feedTitle string) DeliveryResult {
	caption := fmt.Sprintf("%s\n\nFrom: %s", markdownLink(item.Title, item.Link), feedTitle)

	if item.Image != "" {
		photo := tgbotapi.NewPhotoShare(chatId, item.Image)
		photo.Caption = caption
		photo.ParseMode = "markdown"
		photo.DisableNotification = true
		_, err := session.bot.Send(photo)
		if err == nil {
			return DeliveryResult{Status: DeliveryOK}
		}
		result := classify(err)
		if result.Status == DeliveryPermanentFailure || result.RetryAfter > 0 {
			return result
		}
		// bad image URL: retry as text
	}

	message := tgbotapi.NewMessage(chatId, caption)
	message.ParseMode = "markdown"
	message.DisableNotification = true
	_, err := session.bot.Send(message)
	return classify(err)
}

// NotifyOwner implements the health tracker's Notifier.
func (session *Session) NotifyOwner(ownerId int64, text string) {
	if result := session.SendText(ownerId, text); result.Err != nil {
		logger.Errorf("notify %d: %v", ownerId, result.Err)
	}
}

// Probe sends and immediately deletes a throwaway message, proving the bot
// can write to the chat without leaving anything behind.
func (session *Session) Probe(chatId int64) DeliveryResult {
	message := tgbotapi.NewMessage(chatId, "Validating configuration...")
	sent, err := session.bot.Send(message)
	if err != nil {
		return classify(err)
	}
	if _, err := session.bot.DeleteMessage(tgbotapi.NewDeleteMessage(chatId, sent.MessageID)); err != nil {
		logger.Warnf("delete probe message in %d: %v", chatId, err)
	}
	return DeliveryResult{Status: DeliveryOK}
}

// ChatTitle resolves a chat's display title, memoized through the TTL cache.
func (session *Session) ChatTitle(chatId int64) string {
	if title, ok := session.chatTitles.Get(chatId); ok {
		return title
	}
	chat, err := session.bot.GetChat(tgbotapi.ChatConfig{ChatID: chatId})
	if err != nil || chat.Title == "" {
		return fmt.Sprintf("Group %d", chatId)
	}
	session.chatTitles.Set(chatId, chat.Title)
	return chat.Title
}

// classify folds a transport error into the three delivery outcomes, plus
// the retry-after hint when the transport asked for a backoff.
func classify(err error) DeliveryResult {
	if err == nil {
		return DeliveryResult{Status: DeliveryOK}
	}
	if apiErr, ok := err.(tgbotapi.Error); ok && apiErr.RetryAfter > 0 {
		return DeliveryResult{
			Status:     DeliveryTransientFailure,
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	switch err.Error() {
	case errBlocked, errDeactivated, errChatNotFound, errKicked, errNotMember:
		return DeliveryResult{Status: DeliveryPermanentFailure, Err: err}
	}
	if strings.Contains(err.Error(), "retry after") {
		return DeliveryResult{Status: DeliveryTransientFailure, RetryAfter: time.Second, Err: err}
	}
	return DeliveryResult{Status: DeliveryTransientFailure, Err: err}
}
