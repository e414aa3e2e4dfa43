package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/domains/history"
	"github.com/brainzab/mranatoly-bot/integrations/telegram"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// CommandService handles slash commands. Replies go through the same
// transport as the message pipeline and land in the target chat's history the
// same way.
type CommandService struct {
	transport Transport
	feeds     *FeedsService
	repo      history.IHistoryRepository
	monitor   *botmonitor.Monitor

	botID int64
	now   func() time.Time
}

func NewCommandService(transport Transport, feeds *FeedsService, repo history.IHistoryRepository, monitor *botmonitor.Monitor) *CommandService {
	return &CommandService{
		transport: transport,
		feeds:     feeds,
		repo:      repo,
		monitor:   monitor,
		now:       time.Now,
	}
}

func (s *CommandService) SetBotIdentity(id int64) { s.botID = id }

// Handle dispatches a /command message. Returns false when the text is not a
// command at all so the caller can run the regular pipeline.
func (s *CommandService) Handle(ctx context.Context, msg *telegram.Message) bool {
	if msg == nil || msg.Chat == nil || !strings.HasPrefix(msg.Text, "/") {
		return false
	}

	command := strings.ToLower(strings.Fields(msg.Text)[0])
	if i := strings.Index(command, "@"); i > 0 {
		// "/stats@anatoly_bot" addresses this bot explicitly.
		command = command[:i]
	}

	s.monitor.IncrementCommand(msg.Chat.ID)

	switch command {
	case "/start":
		s.reply(ctx, msg, fmt.Sprintf("Привет, я бот версии %s", config.AppVersion))
	case "/version":
		s.reply(ctx, msg, fmt.Sprintf("Версия бота: %s", config.AppVersion))
	case "/reset":
		s.handleReset(ctx, msg)
	case "/stats":
		s.handleStats(ctx, msg)
	case "/chatstats", "/users_stat":
		s.handleChatStats(ctx, msg)
	case "/reaction":
		s.handleReaction(ctx, msg)
	case "/test":
		s.handleSystemTest(ctx, msg)
	case "/pogoda":
		s.handleWeather(ctx, msg)
	case "/wld":
		s.handleWLD(ctx, msg)
	case "/rub":
		s.handleRub(ctx, msg)
	case "/byn":
		s.handleByn(ctx, msg)
	default:
		if teamID, ok := config.TeamIDs[strings.TrimPrefix(command, "/")]; ok {
			s.handleTeamMatches(ctx, msg, strings.TrimPrefix(command, "/"), teamID)
			return true
		}
		return false
	}
	return true
}

func (s *CommandService) reply(ctx context.Context, msg *telegram.Message, text string) {
	if err := s.transport.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		logrus.Errorf("[COMMAND] reply failed: %v", err)
		return
	}
	if msg.Chat.ID == config.TargetChatID {
		s.monitor.IncrementDBOperation(msg.Chat.ID)
		if err := s.repo.SaveMessage(ctx, msg.Chat.ID, s.botID, 0, "assistant", text); err != nil {
			logrus.Errorf("[COMMAND] save reply failed: %v", err)
		}
	}
}

func (s *CommandService) handleReset(ctx context.Context, msg *telegram.Message) {
	if err := s.repo.ResetChat(ctx, msg.Chat.ID); err != nil {
		logrus.Errorf("[COMMAND] reset failed: %v", err)
		s.reply(ctx, msg, "Не вышло сбросить контекст, попробуй ещё раз.")
		return
	}
	s.reply(ctx, msg, "Контекст для AI сброшен, мудила. Начинаем с чистого листа!")
}

func (s *CommandService) handleStats(ctx context.Context, msg *telegram.Message) {
	snap := s.monitor.GetSnapshot()

	var b strings.Builder
	b.WriteString("📊 Статистика бота:\n\n")
	fmt.Fprintf(&b, "⏱️ Время работы: %s\n", snap.UptimeText)
	fmt.Fprintf(&b, "💾 Использование памяти: %s\n", humanize.IBytes(snap.MemoryBytes))
	fmt.Fprintf(&b, "💬 Обработано сообщений: %d\n", snap.MessageCount)
	fmt.Fprintf(&b, "⌨️ Выполнено команд: %d\n", snap.CommandCount)
	fmt.Fprintf(&b, "🧠 AI-запросов (всего): %d\n", snap.AIRequestCount)
	fmt.Fprintf(&b, "🌐 API-запросов (всего): %d\n", snap.APIRequestCount)
	fmt.Fprintf(&b, "🗄️ Операций с БД: %d\n", snap.DBOperationCount)
	fmt.Fprintf(&b, "❌ Ошибок: %d\n\n", snap.ErrorCount)

	if len(snap.Chats) > 0 {
		fmt.Fprintf(&b, "🏢 Всего чатов: %d\n\n", len(snap.Chats))
		if len(snap.Chats) <= 10 {
			for chatID, cs := range snap.Chats {
				fmt.Fprintf(&b, "Чат %d: 💬 %d, ⌨️ %d, 🧠 %d, 🌐 %d\n",
					chatID, cs.MessageCount, cs.CommandCount, cs.AIRequestCount, cs.APIRequestCount)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "🤖 Версия бота: %s", config.AppVersion)

	s.reply(ctx, msg, b.String())
}

func (s *CommandService) handleChatStats(ctx context.Context, msg *telegram.Message) {
	if msg.Chat.Type != "group" && msg.Chat.Type != "supergroup" {
		s.reply(ctx, msg, "Эта команда доступна только в групповых чатах.")
		return
	}

	counts, err := s.repo.UserMessageCounts(ctx, msg.Chat.ID)
	if err != nil {
		logrus.Errorf("[COMMAND] chat stats failed: %v", err)
		s.reply(ctx, msg, "Произошла ошибка при получении статистики.")
		return
	}
	if len(counts) == 0 {
		s.reply(ctx, msg, "Статистика недоступна: в базе нет сообщений для этого чата.")
		return
	}

	var total int64
	for _, c := range counts {
		total += c.Count
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Статистика сообщений в чате %s*\n\n", chatLabel(msg.Chat))
	fmt.Fprintf(&b, "Всего сообщений: %d\n", total)
	b.WriteString("Топ отправителей:\n")
	for i, c := range counts {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "%d. User %d: %d сообщений\n", i+1, c.UserID, c.Count)
	}
	s.reply(ctx, msg, b.String())
}

// handleReaction lets chat admins manage the auto-reaction settings without a
// restart. The settings live in config vars the message pipeline reads on
// every message, so changes apply immediately.
func (s *CommandService) handleReaction(ctx context.Context, msg *telegram.Message) {
	member, err := s.transport.GetChatMember(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		logrus.Errorf("[COMMAND] admin check failed: %v", err)
	}
	if !member.IsAdmin() {
		s.reply(ctx, msg, "Только админы могут управлять реакциями, петушок!")
		return
	}

	args := strings.Fields(msg.Text)[1:]
	if len(args) == 0 {
		status := "выключены"
		targetUser := "не задан"
		reaction := "не задана"
		if config.ReactionEnabled {
			status = "включены"
			targetUser = strconv.FormatInt(config.ReactionUserID, 10)
			if config.TargetReaction != "" {
				reaction = config.TargetReaction
			}
		}
		s.reply(ctx, msg, fmt.Sprintf(
			"🔹 Текущие настройки реакций:\n▫️ Статус: %s\n▫️ ID пользователя: %s\n▫️ Реакция: %s\n\n"+
				"🔸 Использование команды:\n▫️ /reaction on|off - включить/выключить реакции\n"+
				"▫️ /reaction set_user ID - установить ID пользователя для реакций\n"+
				"▫️ /reaction set_emoji EMOJI - установить эмодзи для реакции\n"+
				"▫️ /reaction clear - отключить реакции",
			status, targetUser, reaction))
		return
	}

	switch action := strings.ToLower(args[0]); {
	case action == "on":
		config.ReactionEnabled = true
		s.reply(ctx, msg, "✅ Реакции включены")
	case action == "off":
		config.ReactionEnabled = false
		s.reply(ctx, msg, "✅ Реакции выключены")
	case action == "set_user" && len(args) > 1:
		userID, parseErr := strconv.ParseInt(args[1], 10, 64)
		if parseErr != nil {
			s.reply(ctx, msg, "❌ Ошибка: ID пользователя должен быть числом")
			return
		}
		config.ReactionUserID = userID
		s.reply(ctx, msg, fmt.Sprintf("✅ ID пользователя для реакций установлен: %d", userID))
	case action == "set_emoji" && len(args) > 1:
		emoji := args[1]
		// Telegram reaction emoji are one or two runes.
		if utf8.RuneCountInString(emoji) > 2 {
			s.reply(ctx, msg, "❌ Ошибка: это не похоже на эмодзи")
			return
		}
		config.TargetReaction = emoji
		s.reply(ctx, msg, fmt.Sprintf("✅ Эмодзи для реакций установлено: %s", emoji))
	case action == "clear":
		config.ReactionEnabled = false
		config.TargetReaction = ""
		s.reply(ctx, msg, "✅ Реакции отключены и настройки сброшены")
	default:
		s.reply(ctx, msg, "❌ Неизвестная команда. Используйте /reaction без параметров для справки.")
	}
}

// handleSystemTest probes the database and the external feeds end to end.
func (s *CommandService) handleSystemTest(ctx context.Context, msg *telegram.Message) {
	check := func(ok bool) string {
		if ok {
			return "Работает ✅"
		}
		return "Ошибка ❌"
	}

	dbOK := s.repo.Ping(ctx) == nil
	weather := s.feeds.Weather(ctx, "Minsk,BY", msg.Chat.ID)
	weatherOK := !strings.Contains(weather, WeatherUnavailable)
	rates, err := s.feeds.Currency(ctx, msg.Chat.ID)
	currencyOK := err == nil && rates.RUB > 0 && rates.BYN > 0

	s.reply(ctx, msg, fmt.Sprintf(
		"🧪 Тест системы:\n\n🤖 Бот: Онлайн ✅\n🗃️ База данных: %s\n🌤️ API погоды: %s\n💱 API валют: %s\n\n📋 Версия: %s",
		check(dbOK), check(weatherOK), check(currencyOK), config.AppVersion))
}

func (s *CommandService) handleWeather(ctx context.Context, msg *telegram.Message) {
	cities := []struct{ name, code string }{
		{"Минск", "Minsk,BY"},
		{"Гомель", "Gomel,BY"},
		{"Жлобин", "Zhlobin,BY"},
	}

	type result struct {
		idx  int
		text string
	}
	results := make(chan result, len(cities))
	for i, city := range cities {
		go func(idx int, code string) {
			results <- result{idx, s.feeds.Weather(ctx, code, msg.Chat.ID)}
		}(i, city.code)
	}

	lines := make([]string, len(cities))
	for range cities {
		r := <-results
		lines[r.idx] = r.text
	}

	var b strings.Builder
	b.WriteString("🌤 *Погода сейчас:*\n\n")
	for i, city := range cities {
		fmt.Fprintf(&b, "🏙 *%s*: %s\n", city.name, lines[i])
	}
	s.reply(ctx, msg, b.String())
}

func (s *CommandService) handleWLD(ctx context.Context, msg *telegram.Message) {
	prices, err := s.feeds.Crypto(ctx, msg.Chat.ID)
	if err != nil {
		logrus.Errorf("[COMMAND] crypto fetch failed: %v", err)
		s.reply(ctx, msg, "Не удалось получить актуальные данные. Попробуйте позже.")
		return
	}
	rates, err := s.feeds.Currency(ctx, msg.Chat.ID)
	if err != nil || prices.WLD == 0 || rates.BYN == 0 || rates.RUB == 0 {
		s.reply(ctx, msg, "Не удалось получить актуальные данные. Попробуйте позже.")
		return
	}

	text := fmt.Sprintf(
		"💰 *Курс WorldCoin (WLD):*\n\n"+
			"📈 USD: $%.4f\n"+
			"📈 BYN: %.4f BYN\n"+
			"📈 RUB: %.4f RUB\n\n"+
			"⏱ Данные на %s",
		prices.WLD, prices.WLD*rates.BYN, prices.WLD*rates.RUB,
		s.now().Format("02.01.2006 15:04"),
	)
	s.reply(ctx, msg, text)
}

func (s *CommandService) handleRub(ctx context.Context, msg *telegram.Message) {
	rates, err := s.feeds.Currency(ctx, msg.Chat.ID)
	if err != nil || rates.RUB == 0 {
		s.reply(ctx, msg, "Не удалось получить актуальные данные о курсе USD/RUB. Попробуйте позже.")
		return
	}
	text := fmt.Sprintf(
		"💵 *Курс USD/RUB:*\n\n1 USD = %.4f RUB\n1 RUB = %.6f USD\n\n⏱ Данные на %s",
		rates.RUB, 1/rates.RUB, s.now().Format("02.01.2006 15:04"),
	)
	s.reply(ctx, msg, text)
}

func (s *CommandService) handleByn(ctx context.Context, msg *telegram.Message) {
	rates, err := s.feeds.Currency(ctx, msg.Chat.ID)
	if err != nil || rates.BYN == 0 {
		s.reply(ctx, msg, "Не удалось получить актуальные данные о курсе USD/BYN. Попробуйте позже.")
		return
	}
	text := fmt.Sprintf(
		"💵 *Курс USD/BYN:*\n\n1 USD = %.4f BYN\n1 BYN = %.6f USD\n\n⏱ Данные на %s",
		rates.BYN, 1/rates.BYN, s.now().Format("02.01.2006 15:04"),
	)
	s.reply(ctx, msg, text)
}

// handleTeamMatches renders the last five fixtures for a team with per-match
// goal events.
func (s *CommandService) handleTeamMatches(ctx context.Context, msg *telegram.Message, teamName string, teamID int64) {
	body := s.feeds.TeamFixtures(ctx, teamID, 5, 0, msg.Chat.ID)
	fixtures := gjson.GetBytes(body, "response")
	if body == nil || !fixtures.Exists() || len(fixtures.Array()) == 0 {
		s.reply(ctx, msg, "Не удалось получить данные о матчах. Пиздец какой-то!")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Последние 5 матчей %s:\n\n", strings.ToUpper(teamName))
	for _, fixture := range fixtures.Array() {
		fixtureID := fixture.Get("fixture.id").Int()
		home := fixture.Get("teams.home.name").String()
		away := fixture.Get("teams.away.name").String()
		homeGoals := fixture.Get("goals.home").Int()
		awayGoals := fixture.Get("goals.away").Int()
		date := strings.SplitN(fixture.Get("fixture.date").String(), "T", 2)[0]

		ourGoals, theirGoals := homeGoals, awayGoals
		if fixture.Get("teams.away.id").Int() == teamID {
			ourGoals, theirGoals = awayGoals, homeGoals
		}
		icon := "🟡"
		if ourGoals > theirGoals {
			icon = "🟢"
		} else if ourGoals < theirGoals {
			icon = "🔴"
		}

		fmt.Fprintf(&b, "%s %s: %s %d - %d %s\n%s\n\n",
			icon, date, home, homeGoals, awayGoals, away,
			s.matchGoalsLine(ctx, fixtureID, msg.Chat.ID))
	}
	s.reply(ctx, msg, b.String())
}

func (s *CommandService) matchGoalsLine(ctx context.Context, fixtureID, chatID int64) string {
	events := s.feeds.MatchEvents(ctx, fixtureID, chatID)
	if events == nil {
		return "Голы: Ошибка получения событий"
	}

	var scorers []string
	for _, e := range gjson.GetBytes(events, "response").Array() {
		if e.Get("type").String() != "Goal" {
			continue
		}
		scorers = append(scorers, fmt.Sprintf("%s (%d')",
			e.Get("player.name").String(), e.Get("time.elapsed").Int()))
	}
	if len(scorers) == 0 {
		return "Голы: Нет данных о голах"
	}
	return "Голы: " + strings.Join(scorers, ", ")
}
