package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/pkg/retry"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	igBaseURL   = "https://www.instagram.com"
	igUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	igAppID     = "936619743392459"
)

type sessionState struct {
	Username  string            `json:"username"`
	Cookies   map[string]string `json:"cookies"`
	CreatedAt time.Time         `json:"created_at"`
}

// SessionStrategy resolves media through a logged-in web session. It is the
// highest-priority strategy because authenticated responses are the most
// complete, but it degrades to unavailable for the rest of the process on any
// authentication error instead of looping re-logins.
type SessionStrategy struct {
	client *http.Client

	mu          sync.Mutex
	loggedIn    bool
	unavailable bool
	csrfToken   string
}

func NewSessionStrategy() *SessionStrategy {
	jar, _ := cookiejar.New(nil)
	return &SessionStrategy{
		client: &http.Client{Timeout: 15 * time.Second, Jar: jar},
	}
}

func (s *SessionStrategy) Name() string { return "session" }

func (s *SessionStrategy) Attempt(ctx context.Context, shortcode string) (string, error) {
	if config.InstagramUsername == "" || config.InstagramPassword == "" {
		return "", fmt.Errorf("%w: no credentials configured", ErrStrategyUnavailable)
	}

	s.mu.Lock()
	if s.unavailable {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: authentication previously failed", ErrStrategyUnavailable)
	}
	if !s.loggedIn {
		if err := s.establishSession(ctx); err != nil {
			s.unavailable = true
			s.mu.Unlock()
			logrus.Errorf("[INSTAGRAM] session login failed, strategy disabled: %v", err)
			return "", fmt.Errorf("%w: %v", ErrStrategyUnavailable, err)
		}
		s.loggedIn = true
	}
	s.mu.Unlock()

	// Only a live session gets the retry budget; without one the strategy
	// reported unavailable above and consumed nothing.
	return retry.Do(ctx, "instagram media info", func(ctx context.Context) (string, error) {
		return s.fetchMediaURL(ctx, shortcode)
	}, 3, time.Second)
}

func (s *SessionStrategy) establishSession(ctx context.Context) error {
	if err := s.loadSessionFile(); err == nil {
		logrus.Infof("[INSTAGRAM] reusing saved session for %s", config.InstagramUsername)
		return nil
	}

	if err := s.fetchCSRF(ctx); err != nil {
		return fmt.Errorf("csrf bootstrap: %w", err)
	}

	body, err := s.postLogin(ctx)
	if err != nil {
		return err
	}

	if gjson.GetBytes(body, "two_factor_required").Bool() {
		identifier := gjson.GetBytes(body, "two_factor_info.two_factor_identifier").String()
		if err := s.completeTwoFactor(ctx, identifier); err != nil {
			return err
		}
	} else if !gjson.GetBytes(body, "authenticated").Bool() {
		return fmt.Errorf("login rejected: %s", gjson.GetBytes(body, "message").String())
	}

	if err := s.saveSessionFile(); err != nil {
		logrus.Warnf("[INSTAGRAM] could not persist session: %v", err)
	}
	logrus.Infof("[INSTAGRAM] logged in as %s", config.InstagramUsername)
	return nil
}

func (s *SessionStrategy) postLogin(ctx context.Context) ([]byte, error) {
	form := url.Values{}
	form.Set("username", config.InstagramUsername)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), config.InstagramPassword))

	body, status, err := s.postForm(ctx, igBaseURL+"/api/v1/web/accounts/login/ajax/", form)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	if status == http.StatusBadRequest && gjson.GetBytes(body, "two_factor_required").Bool() {
		return body, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("login status %d: %s", status, gjson.GetBytes(body, "message").String())
	}
	return body, nil
}

// completeTwoFactor submits a time-based code. A code generated right at the
// end of a period can be rejected because the remote clock already rolled
// over, so a rejection waits out one full period and retries once with the
// next code.
func (s *SessionStrategy) completeTwoFactor(ctx context.Context, identifier string) error {
	if config.InstagramTOTPSecret == "" {
		return fmt.Errorf("two-factor required but no TOTP secret configured")
	}

	first, err := s.generateCode(time.Now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}
	if err := s.submitTwoFactor(ctx, identifier, first); err == nil {
		return nil
	} else {
		logrus.Warnf("[INSTAGRAM] totp code rejected, waiting out the period: %v", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(config.TOTPPeriod):
	}

	second, err := s.generateCode(time.Now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}
	if second == first {
		// Same period, no point resubmitting an already rejected code.
		return fmt.Errorf("two-factor code rejected and period has not advanced")
	}
	return s.submitTwoFactor(ctx, identifier, second)
}

func (s *SessionStrategy) generateCode(at time.Time) (string, error) {
	return totp.GenerateCodeCustom(config.InstagramTOTPSecret, at, totp.ValidateOpts{
		Period:    uint(config.TOTPPeriod / time.Second),
		Digits:    otp.Digits(config.TOTPDigits),
		Algorithm: otp.AlgorithmSHA1,
	})
}

func (s *SessionStrategy) submitTwoFactor(ctx context.Context, identifier, code string) error {
	form := url.Values{}
	form.Set("username", config.InstagramUsername)
	form.Set("identifier", identifier)
	form.Set("verification_code", code)
	form.Set("verification_method", "3")

	body, status, err := s.postForm(ctx, igBaseURL+"/api/v1/web/accounts/login/ajax/two_factor/", form)
	if err != nil {
		return fmt.Errorf("two-factor request: %w", err)
	}
	if status != http.StatusOK || !gjson.GetBytes(body, "authenticated").Bool() {
		return fmt.Errorf("two-factor rejected: %s", gjson.GetBytes(body, "message").String())
	}
	return nil
}

func (s *SessionStrategy) fetchCSRF(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, igBaseURL+"/accounts/login/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", igUserAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	for _, c := range s.client.Jar.Cookies(mustParseURL(igBaseURL)) {
		if c.Name == "csrftoken" {
			s.csrfToken = c.Value
			return nil
		}
	}
	return fmt.Errorf("no csrftoken cookie in login page response")
}

func (s *SessionStrategy) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", igUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", s.csrfToken)
	req.Header.Set("X-IG-App-ID", igAppID)
	req.Header.Set("Referer", igBaseURL+"/accounts/login/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (s *SessionStrategy) fetchMediaURL(ctx context.Context, shortcode string) (string, error) {
	mediaID, err := mediaIDFromShortcode(shortcode)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/media/%d/info/", igBaseURL, mediaID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", igUserAgent)
	req.Header.Set("X-IG-App-ID", igAppID)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		s.mu.Lock()
		s.unavailable = true
		s.loggedIn = false
		s.mu.Unlock()
		return "", fmt.Errorf("session no longer authorized (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media info status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return videoURLFromItems(body)
}

func (s *SessionStrategy) loadSessionFile() error {
	raw, err := os.ReadFile(config.InstagramSessionFile)
	if err != nil {
		return err
	}
	var state sessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return err
	}
	if state.Username != config.InstagramUsername || len(state.Cookies) == 0 {
		return fmt.Errorf("saved session is for another account or empty")
	}

	base := mustParseURL(igBaseURL)
	cookies := make([]*http.Cookie, 0, len(state.Cookies))
	for name, value := range state.Cookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Domain: ".instagram.com", Path: "/"})
		if name == "csrftoken" {
			s.csrfToken = value
		}
	}
	s.client.Jar.SetCookies(base, cookies)
	return nil
}

func (s *SessionStrategy) saveSessionFile() error {
	state := sessionState{
		Username:  config.InstagramUsername,
		Cookies:   make(map[string]string),
		CreatedAt: time.Now(),
	}
	for _, c := range s.client.Jar.Cookies(mustParseURL(igBaseURL)) {
		state.Cookies[c.Name] = c.Value
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(config.InstagramSessionFile, raw, 0o600)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
