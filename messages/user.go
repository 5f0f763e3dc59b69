package messages

import (
	"fmt"
	"html"
	"strings"

	"tgstat-bot/models"
)

// Static user-facing texts (in Russian, HTML parse mode)
const (
	MsgSubscriptionNeeded = "Для того, чтобы пользоваться ботом, подпишитесь на канал:"
	MsgPleaseWait         = "Ваш запрос находится в обработке. \n⏰ Поиск займёт 1-2 минуты"
	MsgNotFound           = "К сожалению, не удалось найти ничего по вашему запросу 😞"
	MsgNotSubscribed      = "Вы не подписались!"
	MsgSubscribed         = "😉 Можете пользоваться ботом!"
	MsgErrorGeneral       = "Произошла ошибка. Попробуйте еще раз."

	MsgServiceStarted = "🚀 Сервис запущен"
	MsgAuthRequired   = "⚠️ tgstat требует авторизацию. Откройте ссылку в течение минуты:\n%s"

	responseFooter = "———————————————— \n" +
		"Консультации по внешней рекламе на маркетплейсах. Закрытый телеграм канал по блоггерам, группам где мы " +
		"рекламируемся. Интересует? Напишите @knopkazakazyy"
)

// MaxMessageLength is Telegram's limit for a single text message
const MaxMessageLength = 4096

// Welcome greets the user by first name
func Welcome(userName string) string {
	return fmt.Sprintf("👋 Привет, %s! \n", html.EscapeString(userName)) +
		"Это бот от канала <b>Кнопка Заказы</b>. Он позволяет находить товары, которые рекламировались " +
		"в Телеграм каналах. \n\n" +
		"🔎 <b>Есть три варианта поиска:</b> \n" +
		"1. По артикулу - вы вводите артикул интересуемого товара. \n" +
		"2. По ссылке - Вставляете ссылку на товар. \n" +
		"3. По поисковому запросу - например \"Платье женское\" \n"
}

// PromptForRequests tells a fresh user their daily allowance
func PromptForRequests(maxPerDay int) string {
	return fmt.Sprintf("⭐ В день вам доступно %d бесплатных запросов. \n\n🔍 Введите интересующий вас:", maxPerDay)
}

// PromptForRequestsLeft is sent after each search while the user has quota left
func PromptForRequestsLeft(left int) string {
	return fmt.Sprintf("⭐ Осталось бесплатных запросов на сегодня: %d \n\n🔍 Введите интересующий вас:", left)
}

// RequestTooLong rejects queries of maxLength characters or more
func RequestTooLong(maxLength int) string {
	return fmt.Sprintf("❌ Ваш запрос слишком длинный! \n\nПожалуйста, сократите его до %d символов.", maxLength)
}

// DayRequestsExceeded is sent once the daily quota is used up
func DayRequestsExceeded(maxPerDay int) string {
	return fmt.Sprintf("❌ Лимит запросов на сегодня превышен. \n\nЗавтра Вам будут снова доступны %d запросов.", maxPerDay)
}

// Help lists what the bot can do
func Help(maxPerDay int) string {
	return "Отправьте артикул, ссылку на товар или поисковый запрос, и бот найдёт посты в Телеграм каналах, " +
		"где этот товар рекламировался.\n\n" +
		"/start - начать заново\n" +
		"/help - показать это сообщение\n\n" +
		fmt.Sprintf("В день доступно %d бесплатных запросов.", maxPerDay)
}

// PostDescription renders one record as an HTML block
func PostDescription(post models.PostData) string {
	return fmt.Sprintf("<a href='%s'>%s</a> \n", html.EscapeString(post.SourceURL), html.EscapeString(post.SourceTitle)) +
		fmt.Sprintf("📆 Дата публикации: %s \n", html.EscapeString(post.PublicationDate)) +
		fmt.Sprintf("👀 Просмотров: %s \n", html.EscapeString(post.ViewsCount)) +
		fmt.Sprintf("📲 Репостов: %s \n", html.EscapeString(post.RepostsCount)) +
		fmt.Sprintf("🔗 <a href='%s'>Ссылка на пост</a>", html.EscapeString(post.PostURL))
}

// RequestResponse renders the search results as one or more messages, each
// within MaxMessageLength. Records are never split across messages; the
// header opens the first message and the footer closes the last one.
func RequestResponse(query string, posts []models.PostData) []string {
	header := fmt.Sprintf("🔍 По запросу <b>\"%s\"</b> \nНайдено (за последние 7 дней):", html.EscapeString(query))

	blocks := make([]string, 0, len(posts)+2)
	blocks = append(blocks, header)
	for i, post := range posts {
		blocks = append(blocks, fmt.Sprintf("%d. %s ", i+1, PostDescription(post)))
	}
	blocks = append(blocks, responseFooter)

	return pack(blocks, " \n\n", MaxMessageLength)
}

// pack joins blocks with sep, starting a new message whenever the next block
// would push the current one past limit (counted in runes, as Telegram does).
// A single block longer than limit is sent on its own.
func pack(blocks []string, sep string, limit int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	sepLen := len([]rune(sep))

	for _, block := range blocks {
		n := len([]rune(block))
		if curLen > 0 && curLen+sepLen+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(block)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}

	return out
}
