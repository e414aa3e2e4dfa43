package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/domains/history"
	"github.com/brainzab/mranatoly-bot/integrations/telegram"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/brainzab/mranatoly-bot/pkg/ratelimit"
	"github.com/brainzab/mranatoly-bot/pkg/utils"
	"github.com/sirupsen/logrus"
)

var instagramLinkRe = regexp.MustCompile(`instagram\.com/(reel|p|tv)/[A-Za-z0-9_-]+`)

// rareResponseChance is how often "сосал?" gets the rare reply.
const rareResponseChance = 0.1

// Transport is the slice of the chat API the pipeline needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	SetMessageReaction(ctx context.Context, chatID, messageID int64, emoji string) error
	SendVideo(ctx context.Context, chatID int64, filePath string, replyTo int64) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
}

// VideoResolver turns a post URL into a direct media URL.
type VideoResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// VideoFetcher downloads resolved media and releases it afterwards.
type VideoFetcher interface {
	Download(ctx context.Context, mediaURL, shortcode string) (string, error)
	Cleanup(localPath string)
}

// Completer produces an AI reply from history plus the live query.
type Completer interface {
	Complete(ctx context.Context, entries []history.Entry, query string) (string, error)
}

// ShortcodeExtractor lets the pipeline derive the temp-dir name without
// knowing the provider package.
type ShortcodeExtractor func(rawURL string) (string, error)

// MessageService is the inbound pipeline: persistence, reactions, reel
// downloads, canned replies and AI conversation, in that order. The first
// stage that fully handles a message stops the walk.
type MessageService struct {
	transport Transport
	resolver  VideoResolver
	fetcher   VideoFetcher
	ai        Completer
	repo      history.IHistoryRepository
	monitor   *botmonitor.Monitor
	limiter   *ratelimit.Limiter
	shortcode ShortcodeExtractor

	// randFloat is swapped in tests to pin the rare-reply roll.
	randFloat func() float64

	botID       int64
	botUsername string
}

func NewMessageService(
	transport Transport,
	resolver VideoResolver,
	fetcher VideoFetcher,
	ai Completer,
	repo history.IHistoryRepository,
	monitor *botmonitor.Monitor,
	limiter *ratelimit.Limiter,
	shortcode ShortcodeExtractor,
) *MessageService {
	return &MessageService{
		transport: transport,
		resolver:  resolver,
		fetcher:   fetcher,
		ai:        ai,
		repo:      repo,
		monitor:   monitor,
		limiter:   limiter,
		shortcode: shortcode,
		randFloat: rand.Float64,
	}
}

// SetBotIdentity stores the bot's own id and username, needed to recognize
// mentions and replies addressed to the bot.
func (s *MessageService) SetBotIdentity(id int64, username string) {
	s.botID = id
	s.botUsername = strings.ToLower(username)
}

func (s *MessageService) Handle(ctx context.Context, msg *telegram.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	chatID := msg.Chat.ID
	s.monitor.IncrementMessage(chatID)
	logrus.Infof("[MESSAGE] from %d in chat %d: %s", msg.From.ID, chatID, utils.Truncate(msg.Text, 50))

	if chatID == config.TargetChatID {
		s.saveMessageSafe(ctx, chatID, msg.From.ID, msg.MessageID, "user", msg.Text)
	}

	if config.ReactionEnabled {
		s.processReaction(ctx, msg)
	}

	if s.processInstagramLink(ctx, msg) {
		return
	}
	if s.processTemplateReply(ctx, msg) {
		return
	}
	s.processAIRequest(ctx, msg)
}

func (s *MessageService) saveMessageSafe(ctx context.Context, chatID, userID, messageID int64, role, content string) {
	s.monitor.IncrementDBOperation(chatID)
	if err := s.repo.SaveMessage(ctx, chatID, userID, messageID, role, content); err != nil {
		logrus.Errorf("[MESSAGE] save failed: %v", err)
		s.monitor.LogError(err, "save chat message")
	}
}

func (s *MessageService) processReaction(ctx context.Context, msg *telegram.Message) {
	if msg.From.ID != config.ReactionUserID || config.TargetReaction == "" {
		return
	}
	if err := s.transport.SetMessageReaction(ctx, msg.Chat.ID, msg.MessageID, config.TargetReaction); err != nil {
		logrus.Errorf("[MESSAGE] set reaction: %v", err)
	}
}

// processInstagramLink downloads and re-sends the video for any message
// carrying a post link. Returns true when the message was an Instagram link,
// whether or not delivery succeeded.
func (s *MessageService) processInstagramLink(ctx context.Context, msg *telegram.Message) bool {
	if !instagramLinkRe.MatchString(msg.Text) {
		return false
	}

	chatID := msg.Chat.ID
	s.notifyAdmin(ctx, chatID, fmt.Sprintf("Скачиваю рил из чата %s 🎥", chatLabel(msg.Chat)))
	s.transport.SendChatAction(ctx, chatID, "upload_video")

	localPath, err := s.downloadVideo(ctx, msg.Text)
	if err != nil {
		logrus.Errorf("[MESSAGE] reel download failed: %v", err)
		s.monitor.LogError(err, "instagram reel download")
		s.transport.SendMessage(ctx, chatID, instagramErrorReply(err), msg.MessageID)
		s.notifyAdmin(ctx, chatID, fmt.Sprintf("Ошибка скачивания рила из чата %s: %s",
			chatLabel(msg.Chat), utils.Truncate(err.Error(), 200)))
		return true
	}
	defer s.fetcher.Cleanup(localPath)

	if err := s.transport.SendVideo(ctx, chatID, localPath, msg.MessageID); err != nil {
		logrus.Errorf("[MESSAGE] send video failed: %v", err)
		s.transport.SendMessage(ctx, chatID, "Видео скачалось, но отправить не вышло. Попробуй позже.", msg.MessageID)
	}
	return true
}

func (s *MessageService) downloadVideo(ctx context.Context, text string) (string, error) {
	mediaURL, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		return "", err
	}
	shortcode, err := s.shortcode(text)
	if err != nil {
		return "", err
	}
	return s.fetcher.Download(ctx, mediaURL, shortcode)
}

// instagramErrorReply maps the failure text to the closest user-facing
// explanation by substring, mirroring what users actually hit.
func instagramErrorReply(err error) string {
	reply := "Бля, братишка, что-то пошло не так! 😢\n"
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "404"):
		reply += "Рил не найден, возможно он был удален или профиль закрыт."
	case strings.Contains(text, "login") || strings.Contains(text, "авториз"):
		reply += "Не могу скачать рил из закрытого профиля."
	case strings.Contains(text, "not found") || strings.Contains(text, "не найден"):
		reply += "Видео не найдено, возможно неверная ссылка или контент удалён."
	case strings.Contains(text, "connection"):
		reply += "Проблема с подключением к Instagram. Попробуй позже."
	case strings.Contains(text, "timeout"):
		reply += "Истекло время ожидания ответа от Instagram. Попробуй позже."
	default:
		reply += "Не удалось скачать видео. Попробуй другую ссылку или позже."
	}
	return reply
}

func (s *MessageService) processTemplateReply(ctx context.Context, msg *telegram.Message) bool {
	var reply string
	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "сосал?", "sosal?":
		if s.randFloat() < rareResponseChance && config.RareResponseSosal != "" {
			reply = config.RareResponseSosal
		} else {
			reply = pickResponse(config.ResponsesSosal)
		}
	case "летал?":
		reply = config.ResponseLetal
	case "скамил?":
		reply = pickResponse(config.ResponsesScamil)
	default:
		return false
	}
	if reply == "" {
		return false
	}

	if err := s.transport.SendMessage(ctx, msg.Chat.ID, reply, msg.MessageID); err != nil {
		logrus.Errorf("[MESSAGE] template reply failed: %v", err)
		return true
	}
	if msg.Chat.ID == config.TargetChatID {
		s.saveMessageSafe(ctx, msg.Chat.ID, s.botID, 0, "assistant", reply)
	}
	return true
}

func pickResponse(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}

func (s *MessageService) processAIRequest(ctx context.Context, msg *telegram.Message) {
	lower := strings.ToLower(msg.Text)
	mention := "@" + s.botUsername

	isReplyToBot := msg.ReplyTo != nil && msg.ReplyTo.From != nil && msg.ReplyTo.From.ID == s.botID
	isTagged := s.botUsername != "" && strings.Contains(lower, mention)
	if !isTagged && !isReplyToBot {
		return
	}

	query := lower
	if isTagged {
		query = strings.TrimSpace(strings.ReplaceAll(lower, mention, ""))
	}
	if query == "" {
		s.replyAndRecord(ctx, msg, "И хуле ты мне пишешь пустоту, петушара?")
		return
	}

	if !s.limiter.Allow(msg.From.ID) {
		s.transport.SendMessage(ctx, msg.Chat.ID, "Хорош спамить, братишка. Подожди минуту.", msg.MessageID)
		return
	}

	s.monitor.IncrementAIRequest(msg.Chat.ID)
	s.transport.SendChatAction(ctx, msg.Chat.ID, "typing")

	entries, err := s.repo.RecentHistory(ctx, msg.Chat.ID, config.ChatHistoryLimit)
	if err != nil {
		logrus.Errorf("[MESSAGE] history load failed: %v", err)
		entries = nil
	}
	if isReplyToBot && msg.ReplyTo.Text != "" {
		entries = append(entries, history.Entry{Role: "assistant", Content: msg.ReplyTo.Text})
	}

	answer, err := s.ai.Complete(ctx, entries, query)
	if err != nil {
		logrus.Errorf("[MESSAGE] ai completion failed: %v", err)
		s.monitor.LogError(err, "ai completion")
		s.transport.SendMessage(ctx, msg.Chat.ID, "Мозги отвалились, спроси позже.", msg.MessageID)
		return
	}
	s.replyAndRecord(ctx, msg, answer)
}

func (s *MessageService) replyAndRecord(ctx context.Context, msg *telegram.Message, text string) {
	if err := s.transport.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		logrus.Errorf("[MESSAGE] reply failed: %v", err)
		return
	}
	if msg.Chat.ID == config.TargetChatID {
		s.saveMessageSafe(ctx, msg.Chat.ID, s.botID, 0, "assistant", text)
	}
}

func (s *MessageService) notifyAdmin(ctx context.Context, sourceChatID int64, text string) {
	if config.AdminChatID == 0 || sourceChatID == config.AdminChatID {
		return
	}
	if err := s.transport.SendMessage(ctx, config.AdminChatID, text, 0); err != nil {
		logrus.Warnf("[MESSAGE] admin notification failed: %v", err)
	}
}

func chatLabel(chat *telegram.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return fmt.Sprintf("%d", chat.ID)
}
