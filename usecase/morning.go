package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	dataFetchTimeout = 10 * time.Second
	aiWishTimeout    = 20 * time.Second

	fallbackWish        = "❤️ Желаю всем хорошего и продуктивного дня! Пусть всё задуманное получится!"
	fallbackWishTimeout = "❤️ Хорошего всем дня! Извините, у меня проблемы со связью."
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "понедельник",
	time.Tuesday:   "вторник",
	time.Wednesday: "среда",
	time.Thursday:  "четверг",
	time.Friday:    "пятница",
	time.Saturday:  "суббота",
	time.Sunday:    "воскресенье",
}

// MorningService assembles the daily bulletin: weather for every configured
// city, currency and crypto quotes, and an AI-generated wish. Every fetch
// runs concurrently under its own timeout; a slot whose fetch failed or timed
// out renders a placeholder so one dead upstream never kills the bulletin.
type MorningService struct {
	transport Transport
	feeds     *FeedsService
	ai        Completer
	monitor   *botmonitor.Monitor
	now       func() time.Time
}

func NewMorningService(transport Transport, feeds *FeedsService, ai Completer, monitor *botmonitor.Monitor) *MorningService {
	return &MorningService{
		transport: transport,
		feeds:     feeds,
		ai:        ai,
		monitor:   monitor,
		now:       time.Now,
	}
}

type morningData struct {
	weather  map[string]string
	rates    CurrencyRates
	ratesOK  bool
	crypto   CryptoPrices
	cryptoOK bool
	wish     string
}

// Send builds and delivers the bulletin to the main chat, then reports the
// outcome to the admin chat.
func (s *MorningService) Send(ctx context.Context) error {
	logrus.Info("[MORNING] building bulletin")
	data := s.gather(ctx)
	text := s.render(data)

	if err := s.transport.SendMessage(ctx, config.ChatID, text, 0); err != nil {
		s.monitor.LogError(err, "morning bulletin send")
		s.notifyAdmin(ctx, fmt.Sprintf("❌ Ошибка при отправке утреннего сообщения: %v", err))
		return err
	}
	logrus.Info("[MORNING] bulletin sent")
	s.notifyAdmin(ctx, "✅ Утреннее сообщение успешно отправлено в чат")
	return nil
}

// gather launches every fetch as its own goroutine and joins positionally:
// each slot either holds real data or its sentinel, never an error.
func (s *MorningService) gather(ctx context.Context) morningData {
	data := morningData{weather: make(map[string]string, len(config.MorningCities))}

	type weatherResult struct {
		city string
		text string
	}
	weatherCh := make(chan weatherResult, len(config.MorningCities))
	for city, code := range config.MorningCities {
		go func(city, code string) {
			fetchCtx, cancel := context.WithTimeout(ctx, dataFetchTimeout)
			defer cancel()
			done := make(chan string, 1)
			go func() { done <- s.feeds.Weather(fetchCtx, code, config.TargetChatID) }()
			select {
			case text := <-done:
				weatherCh <- weatherResult{city, text}
			case <-fetchCtx.Done():
				weatherCh <- weatherResult{city, "Нет данных (таймаут)"}
			}
		}(city, code)
	}

	ratesCh := make(chan morningData, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, dataFetchTimeout)
		defer cancel()
		var d morningData
		if rates, err := s.feeds.Currency(fetchCtx, config.TargetChatID); err == nil {
			d.rates, d.ratesOK = rates, true
		}
		ratesCh <- d
	}()

	cryptoCh := make(chan morningData, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, dataFetchTimeout)
		defer cancel()
		var d morningData
		if prices, err := s.feeds.Crypto(fetchCtx, config.TargetChatID); err == nil {
			d.crypto, d.cryptoOK = prices, true
		}
		cryptoCh <- d
	}()

	wishCh := make(chan string, 1)
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, aiWishTimeout)
		defer cancel()
		wishCh <- s.aiWish(fetchCtx)
	}()

	for range config.MorningCities {
		r := <-weatherCh
		data.weather[r.city] = r.text
	}
	rates := <-ratesCh
	data.rates, data.ratesOK = rates.rates, rates.ratesOK
	crypto := <-cryptoCh
	data.crypto, data.cryptoOK = crypto.crypto, crypto.cryptoOK
	data.wish = <-wishCh
	return data
}

// aiWish asks the model for a day-appropriate greeting. Failure falls back to
// a canned wish so the bulletin always carries one.
func (s *MorningService) aiWish(ctx context.Context) string {
	day := s.now().Weekday()
	dayName := weekdayNames[day]

	var prompt string
	switch {
	case day == time.Saturday || day == time.Sunday:
		prompt = fmt.Sprintf("Сегодня %s. Сгенерируй уникальное и креативное пожелание хороших выходных для утреннего приветствия в групповом чате друзей. Пожелание должно быть позитивным, с юмором, и учитывать, что сегодня выходной. Длина - 2-3 предложения. Добавь эмодзи. Не используй обращения.", dayName)
	case day == time.Friday:
		prompt = fmt.Sprintf("Сегодня %s. Сгенерируй уникальное и креативное пожелание отличной пятницы и предстоящих выходных для утреннего приветствия в групповом чате друзей. Пожелание должно быть позитивным, с юмором. Длина - 2-3 предложения. Добавь эмодзи. Не используй обращения.", dayName)
	default:
		prompt = fmt.Sprintf("Сегодня %s. Сгенерируй уникальное и креативное пожелание продуктивного дня для утреннего приветствия в групповом чате друзей. Пожелание должно быть позитивным, с юмором, и учитывать день недели. Длина - 2-3 предложения. Добавь эмодзи. Не используй обращения.", dayName)
	}

	wish, err := s.ai.Complete(ctx, nil, prompt)
	if err != nil {
		logrus.Errorf("[MORNING] ai wish failed: %v", err)
		if ctx.Err() != nil {
			return fallbackWishTimeout
		}
		return fallbackWish
	}
	return wish
}

func (s *MorningService) render(data morningData) string {
	var b strings.Builder
	b.WriteString("Родные мои, всем доброе утро и хорошего дня! ❤️\n\n")

	b.WriteString("*Положняк по погоде:*\n")
	for city := range config.MorningCities {
		fmt.Fprintf(&b, "🌥 *%s*: %s\n", city, data.weather[city])
	}

	b.WriteString("\n*Положняк по курсам:*\n")
	if data.ratesOK {
		fmt.Fprintf(&b, "💵 *USD/BYN*: %s BYN\n", formatPrice(data.rates.BYN))
		fmt.Fprintf(&b, "💵 *USD/RUB*: %s RUB\n", formatPrice(data.rates.RUB))
	} else {
		b.WriteString("💵 *USD/BYN*: Нет данных\n")
		b.WriteString("💵 *USD/RUB*: Нет данных\n")
	}

	if data.cryptoOK {
		if data.ratesOK {
			fmt.Fprintf(&b, "₿ *BTC*: $%s USD | %s BYN\n", formatPrice(data.crypto.BTC), formatPrice(data.crypto.BTC*data.rates.BYN))
			fmt.Fprintf(&b, "🌍 *WLD*: $%s USD | %s BYN\n\n", formatPrice(data.crypto.WLD), formatPrice(data.crypto.WLD*data.rates.BYN))
		} else {
			fmt.Fprintf(&b, "₿ *BTC*: $%s USD\n", formatPrice(data.crypto.BTC))
			fmt.Fprintf(&b, "🌍 *WLD*: $%s USD\n\n", formatPrice(data.crypto.WLD))
		}
	} else {
		b.WriteString("₿ *BTC*: Нет данных\n")
		b.WriteString("🌍 *WLD*: Нет данных\n\n")
	}

	b.WriteString(data.wish)
	return b.String()
}

// formatPrice renders money the way the bulletin wants it: thousands get
// separators and two decimals, sub-unit prices keep four digits.
func formatPrice(v float64) string {
	switch {
	case v > 1000:
		return humanize.FormatFloat("#,###.##", v)
	case v < 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func (s *MorningService) notifyAdmin(ctx context.Context, text string) {
	if !config.MonitoringEnabled || config.AdminChatID == 0 || config.AdminChatID == config.ChatID {
		return
	}
	if err := s.transport.SendMessage(ctx, config.AdminChatID, text, 0); err != nil {
		logrus.Warnf("[MORNING] admin notification failed: %v", err)
	}
}
