// Package telegram is a minimal Bot API client covering the calls the bot
// makes: long polling, sending text and video, chat actions and reactions.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brainzab/mranatoly-bot/pkg/utils"
	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: defaultBaseURL,
		token:   token,
	}
}

// NewClientWithBaseURL points the client at a different API host, used by
// tests and local Bot API servers.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// RequestError is a non-2xx or ok=false Bot API response.
type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *RequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram http %d", e.StatusCode)
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	raw, err := c.postJSON(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var out getMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// GetChatMember returns the user's membership record for the chat.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	raw, err := c.postJSON(ctx, "getChatMember", getChatMemberRequest{ChatID: chatID, UserID: userID})
	if err != nil {
		return nil, err
	}
	var out getChatMemberResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// GetUpdates long-polls for new updates and returns them with the next
// offset to acknowledge everything received.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 30
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d", c.baseURL, c.token, secs)
	if offset > 0 {
		endpoint += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, offset, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, offset, c.requestError(resp.StatusCode, raw)
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, fmt.Errorf("telegram getUpdates: ok=false")
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

// SendMessage delivers text with Markdown formatting, splitting anything over
// the API limit into sequential messages. When the API rejects the markup it
// falls back to plain text rather than dropping the reply.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	for i, chunk := range utils.SplitMessage(text, utils.TelegramMessageLimit) {
		chunkReplyTo := int64(0)
		if i == 0 {
			chunkReplyTo = replyTo
		}
		if err := c.sendChunk(ctx, chatID, chunk, chunkReplyTo); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, chatID int64, text string, replyTo int64) error {
	err := c.sendWithParseMode(ctx, chatID, text, "Markdown", replyTo)
	if err == nil {
		return nil
	}
	if isMarkdownParseError(err) {
		logrus.Warnf("[TELEGRAM] markdown rejected, resending as plain text: %v", err)
		return c.sendWithParseMode(ctx, chatID, text, "", replyTo)
	}
	return err
}

func (c *Client) sendWithParseMode(ctx context.Context, chatID int64, text, parseMode string, replyTo int64) error {
	_, err := c.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
		ReplyToMessageID:      replyTo,
	})
	return err
}

// SendChatAction shows the "typing…" / "upload_video" indicator.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.postJSON(ctx, "sendChatAction", sendChatActionRequest{ChatID: chatID, Action: action})
	return err
}

// SetMessageReaction places a single emoji reaction on a message.
func (c *Client) SetMessageReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	_, err := c.postJSON(ctx, "setMessageReaction", setMessageReactionRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction:  []ReactionType{{Type: "emoji", Emoji: emoji}},
	})
	return err
}

// SendVideo uploads a local video file as a reply. The file is streamed
// through a pipe so large files never sit in memory.
func (c *Client) SendVideo(ctx context.Context, chatID int64, filePath string, replyTo int64) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		if replyTo != 0 {
			mw.WriteField("reply_to_message_id", strconv.FormatInt(replyTo, 10))
		}
		part, err := mw.CreateFormFile("video", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	endpoint := fmt.Sprintf("%s/bot%s/sendVideo", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.requestError(resp.StatusCode, raw)
	}
	var out apiResponse
	json.Unmarshal(raw, &out)
	if !out.OK {
		return c.requestError(resp.StatusCode, raw)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, method string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var out apiResponse
	json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		return raw, &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
		}
	}
	return raw, nil
}

func (c *Client) requestError(status int, raw []byte) error {
	var out apiResponse
	json.Unmarshal(raw, &out)
	return &RequestError{StatusCode: status, ErrorCode: out.ErrorCode, Description: out.Description}
}

func isMarkdownParseError(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return strings.Contains(strings.ToLower(reqErr.Description), "can't parse entities")
	}
	return false
}
