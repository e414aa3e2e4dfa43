package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMorningConfig(t *testing.T) {
	t.Helper()
	oldCities, oldChat, oldAdmin, oldMon := config.MorningCities, config.ChatID, config.AdminChatID, config.MonitoringEnabled
	config.MorningCities = map[string]string{"Минск": "Minsk,BY", "Гомель": "Gomel,BY"}
	config.ChatID = 100
	config.AdminChatID = 999
	config.MonitoringEnabled = true
	t.Cleanup(func() {
		config.MorningCities, config.ChatID, config.AdminChatID, config.MonitoringEnabled = oldCities, oldChat, oldAdmin, oldMon
	})
}

func newMorningFixture(t *testing.T, handler http.Handler, ai *fakeCompleter) (*MorningService, *fakeTransport) {
	t.Helper()
	gw, closeFn := newFakeGateway(handler)
	t.Cleanup(closeFn)
	transport := &fakeTransport{}
	svc := NewMorningService(transport, NewFeedsService(gw), ai, botmonitor.New())
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC) } // Monday
	return svc, transport
}

func healthyUpstreams() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/2.5/weather":
			w.Write([]byte(`{"main": {"temp": 20}, "weather": [{"description": "ясно"}]}`))
		case "/api/v3/simple/price":
			w.Write([]byte(`{"bitcoin": {"usd": 60000}, "worldcoin-wld": {"usd": 0.85}}`))
		default:
			w.Write([]byte(`{"rates": {"RUB": 90, "BYN": 3.2}}`))
		}
	})
}

func TestMorningBulletinHappyPath(t *testing.T) {
	withMorningConfig(t)
	ai := &fakeCompleter{answer: "Продуктивного понедельника! 🚀"}
	svc, transport := newMorningFixture(t, healthyUpstreams(), ai)

	require.NoError(t, svc.Send(context.Background()))

	var bulletin string
	for _, m := range transport.messages {
		if m.chatID == 100 {
			bulletin = m.text
		}
	}
	require.NotEmpty(t, bulletin)
	assert.Contains(t, bulletin, "всем доброе утро")
	assert.Contains(t, bulletin, "*Минск*: 20°C, ясно")
	assert.Contains(t, bulletin, "*Гомель*: 20°C, ясно")
	assert.Contains(t, bulletin, "*USD/BYN*: 3.20 BYN")
	assert.Contains(t, bulletin, "*USD/RUB*: 90.00 RUB")
	assert.Contains(t, bulletin, "*BTC*: $60,000.00 USD")
	assert.Contains(t, bulletin, "*WLD*: $0.8500 USD")
	assert.Contains(t, bulletin, "Продуктивного понедельника")
	assert.Contains(t, ai.query, "понедельник")

	var adminNote string
	for _, m := range transport.messages {
		if m.chatID == 999 {
			adminNote = m.text
		}
	}
	assert.Contains(t, adminNote, "успешно")
}

func TestMorningBulletinDegradesPerSlot(t *testing.T) {
	withMorningConfig(t)
	ai := &fakeCompleter{err: errors.New("model offline")}
	svc, transport := newMorningFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data/2.5/weather" {
			w.Write([]byte(`{"main": {"temp": -5}, "weather": [{"description": "снег"}]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}), ai)

	require.NoError(t, svc.Send(context.Background()))

	var bulletin string
	for _, m := range transport.messages {
		if m.chatID == 100 {
			bulletin = m.text
		}
	}
	require.NotEmpty(t, bulletin)
	assert.Contains(t, bulletin, "-5°C, снег", "healthy slots keep their data")
	assert.Contains(t, bulletin, "*USD/BYN*: Нет данных")
	assert.Contains(t, bulletin, "*BTC*: Нет данных")
	assert.Contains(t, bulletin, fallbackWish)
}

func TestMorningBulletinSendFailureNotifiesAdmin(t *testing.T) {
	withMorningConfig(t)
	ai := &fakeCompleter{answer: "пожелание"}
	svc, transport := newMorningFixture(t, healthyUpstreams(), ai)
	transport.sendErr = errors.New("bot was blocked")

	require.Error(t, svc.Send(context.Background()))
	// Both the bulletin attempt and the admin notice were tried.
	assert.GreaterOrEqual(t, len(transport.messages), 2)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "60,000.00", formatPrice(60000))
	assert.Equal(t, "3.20", formatPrice(3.2))
	assert.Equal(t, "0.8500", formatPrice(0.85))
	assert.Equal(t, "1,234.57", formatPrice(1234.567))
}

func TestAIWishPromptMatchesWeekday(t *testing.T) {
	withMorningConfig(t)
	ai := &fakeCompleter{answer: "ok"}
	svc, _ := newMorningFixture(t, healthyUpstreams(), ai)

	svc.now = func() time.Time { return time.Date(2025, 6, 6, 7, 30, 0, 0, time.UTC) } // Friday
	svc.aiWish(context.Background())
	assert.True(t, strings.Contains(ai.query, "пятницы"), ai.query)

	svc.now = func() time.Time { return time.Date(2025, 6, 7, 7, 30, 0, 0, time.UTC) } // Saturday
	svc.aiWish(context.Background())
	assert.True(t, strings.Contains(ai.query, "выходных"), ai.query)
}
