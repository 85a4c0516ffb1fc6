package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/httpapi"
	"github.com/PulfordJ/lastsignal/internal/logfields"
)

// maxMessengerText is the platform's per-message text limit in characters.
const maxMessengerText = 2000

// Messenger delivers messages through a Graph-API style chat platform.
type Messenger struct {
	name string
	cfg  config.MessengerConfig
	api  *httpapi.Client
}

// NewMessenger creates a messenger channel. A nil httpClient uses http.DefaultClient.
func NewMessenger(name string, cfg config.MessengerConfig, httpClient *http.Client) *Messenger {
	return &Messenger{
		name: name,
		cfg:  cfg,
		api:  httpapi.New(httpClient, cfg.APIURL),
	}
}

func (m *Messenger) Name() string { return m.name }

type graphError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// HealthCheck verifies the page access token by fetching the token owner.
func (m *Messenger) HealthCheck(ctx context.Context) error {
	req, err := m.api.NewRequest(ctx, http.MethodGet, "me", m.tokenQuery(), nil)
	if err != nil {
		return NewError(KindUnknown, m.name, "failed to build request", err)
	}
	var out struct {
		graphError
		ID string `json:"id"`
	}
	if err := m.api.Do(req, &out); err != nil {
		return m.classify(err)
	}
	if out.Error != nil {
		return m.classifyGraph(out.Error.Code, out.Error.Message, nil)
	}
	if out.ID == "" {
		return NewError(KindAuthenticationFailed, m.name, "token owner lookup returned no id", nil)
	}
	return nil
}

// Send posts the subject and body as one or more text messages, in order.
// Once the first part is delivered the message counts as sent: a later part
// that fails is logged, never retried, so recipients do not get the opening
// of the message twice.
func (m *Messenger) Send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	parts := splitText(text, maxMessengerText)
	if err := m.post(ctx, parts[0]); err != nil {
		return err
	}
	for i, part := range parts[1:] {
		if err := m.post(ctx, part); err != nil {
			slog.Warn("Messenger delivered the message only in part",
				logfields.Channel(m.name),
				slog.Int("parts_sent", i+1),
				slog.Int("parts", len(parts)),
				logfields.Error(err))
			return nil
		}
	}
	return nil
}

func (m *Messenger) post(ctx context.Context, text string) error {
	body := map[string]any{
		"recipient": map[string]string{"id": m.cfg.RecipientID},
		"message":   map[string]string{"text": text},
	}
	req, err := m.api.NewRequest(ctx, http.MethodPost, "me/messages", m.tokenQuery(), body)
	if err != nil {
		return NewError(KindUnknown, m.name, "failed to build request", err)
	}
	var out graphError
	if err := m.api.Do(req, &out); err != nil {
		return m.classify(err)
	}
	if out.Error != nil {
		return m.classifyGraph(out.Error.Code, out.Error.Message, nil)
	}
	return nil
}

func (m *Messenger) tokenQuery() url.Values {
	return url.Values{"access_token": {m.cfg.AccessToken}}
}

func (m *Messenger) classify(err error) error {
	status := httpapi.StatusCode(err)
	if status == 0 {
		return NewError(KindUnreachable, m.name, "messenger API unreachable", err)
	}
	var out graphError
	if body := httpapi.ResponseBody(err); body != "" && json.Unmarshal([]byte(body), &out) == nil && out.Error != nil {
		return m.classifyGraph(out.Error.Code, out.Error.Message, err)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KindAuthenticationFailed, m.name, "messenger rejected the access token", err)
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimited, m.name, "messenger rate limit reached", err)
	case status >= 500:
		return NewError(KindUnreachable, m.name, "messenger API unavailable", err)
	default:
		return NewError(KindUnknown, m.name, "messenger API error", err)
	}
}

// classifyGraph maps Graph API error codes.
func (m *Messenger) classifyGraph(code int, message string, cause error) error {
	detail := "messenger: " + message
	switch code {
	case 190, 10, 200:
		return NewError(KindAuthenticationFailed, m.name, detail, cause)
	case 4, 17, 32, 613:
		return NewError(KindRateLimited, m.name, detail, cause)
	case 100, 551:
		if code == 551 || strings.Contains(strings.ToLower(message), "recipient") || strings.Contains(strings.ToLower(message), "user") {
			return NewError(KindInvalidRecipient, m.name, detail, cause)
		}
		return NewError(KindUnknown, m.name, detail, cause)
	case 1, 2:
		return NewError(KindUnreachable, m.name, detail, cause)
	default:
		return NewError(KindUnknown, m.name, detail, cause)
	}
}

// splitText cuts text into chunks of at most limit runes, preferring line breaks.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
