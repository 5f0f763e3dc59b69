package messages

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CallbackCheckSubscribe is sent by the "check" button of the subscribe keyboard
const CallbackCheckSubscribe = "check_subscribe"

// SubscribeKeyboard offers the channel link and a button to re-check the
// subscription, one button per row
func SubscribeKeyboard(channelURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Подписаться", channelURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Проверить", CallbackCheckSubscribe),
		),
	)
}
