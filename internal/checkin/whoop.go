package checkin

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/httpapi"
)

// WhoopSourceName names the WHOOP activity source.
const WhoopSourceName = "whoop"

// WhoopScopes are requested during authorization. "offline" grants a refresh token.
var WhoopScopes = []string{"read:cycles", "read:sleep", "read:recovery", "read:profile", "offline"}

var whoopEndpoints = []string{"cycle", "activity/sleep", "recovery"}

// WhoopOptions configures the WHOOP source.
type WhoopOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
	Tokens       *TokenFile
	HTTPClient   *http.Client
	// Limiter paces API requests; nil allows one request per second.
	Limiter *rate.Limiter
}

// Whoop reports the most recent WHOOP cycle, sleep or recovery update.
type Whoop struct {
	oauth      *oauth2.Config
	apiURL     string
	tokens     *TokenFile
	httpClient *http.Client
	limiter    *rate.Limiter

	mu sync.Mutex
}

// NewWhoop creates a WHOOP source.
func NewWhoop(opts WhoopOptions) *Whoop {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return &Whoop{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       WhoopScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     opts.APIURL,
		tokens:     opts.Tokens,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// Name implements Source.
func (w *Whoop) Name() string { return WhoopSourceName }

// AuthCodeURL returns the URL the user visits to grant access.
func (w *Whoop) AuthCodeURL(state string) string {
	return w.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and stores it.
func (w *Whoop) Exchange(ctx context.Context, code string) error {
	tok, err := w.oauth.Exchange(w.oauthContext(ctx), code)
	if err != nil {
		return errors.WrapError(err, errors.CategoryAuth, "failed to exchange authorization code").UserAction().Build()
	}
	if tok.RefreshToken == "" {
		return errors.AuthError("no refresh token received; the offline scope is required").Build()
	}
	return w.tokens.Save(tok)
}

// RefreshToken forces a refresh with the stored refresh token.
func (w *Whoop) RefreshToken(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tok, err := w.tokens.Load()
	if err != nil {
		return err
	}
	if tok == nil || tok.RefreshToken == "" {
		return NewProviderError(ProviderAuthExpired, WhoopSourceName, "no refresh token stored; run activity-auth", nil)
	}
	stale := *tok
	stale.AccessToken = ""
	fresh, err := w.oauth.TokenSource(w.oauthContext(ctx), &stale).Token()
	if err != nil {
		return w.tokenErr(err)
	}
	return w.tokens.Save(fresh)
}

// PollNewActivity implements Source.
func (w *Whoop) PollNewActivity(ctx context.Context, since time.Time) (*time.Time, error) {
	access, err := w.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	client := httpapi.New(w.httpClient, w.apiURL)
	client.SetHeader("Authorization", "Bearer "+access)

	var newest *time.Time
	var firstErr error
	for _, endpoint := range whoopEndpoints {
		ts, err := w.latest(ctx, client, endpoint)
		if err != nil {
			switch ProviderKindOf(err) {
			case ProviderAuthExpired, ProviderRateLimited:
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ts != nil && ts.After(since) && (newest == nil || ts.After(*newest)) {
			newest = ts
		}
	}
	if newest == nil && firstErr != nil {
		return nil, firstErr
	}
	return newest, nil
}

type whoopRecords struct {
	Records []struct {
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"records"`
}

func (w *Whoop) latest(ctx context.Context, client *httpapi.Client, endpoint string) (*time.Time, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, NewProviderError(ProviderUnavailable, WhoopSourceName, "request cancelled", err)
	}
	req, err := client.NewRequest(ctx, http.MethodGet, endpoint, url.Values{"limit": {"1"}}, nil)
	if err != nil {
		return nil, err
	}
	var out whoopRecords
	if err := client.Do(req, &out); err != nil {
		return nil, w.apiErr(endpoint, err)
	}

	var newest *time.Time
	for _, r := range out.Records {
		if r.UpdatedAt.IsZero() {
			continue
		}
		t := r.UpdatedAt.UTC()
		if newest == nil || t.After(*newest) {
			newest = &t
		}
	}
	return newest, nil
}

func (w *Whoop) apiErr(endpoint string, err error) error {
	switch code := httpapi.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return NewProviderError(ProviderAuthExpired, WhoopSourceName, "WHOOP rejected the access token", err)
	case code == http.StatusTooManyRequests:
		retryAfter, _ := errors.ContextString(err, "retry_after")
		return RateLimitedError(WhoopSourceName, parseRetryAfter(retryAfter), err)
	default:
		return NewProviderError(ProviderUnavailable, WhoopSourceName, "WHOOP "+endpoint+" request failed", err)
	}
}

// accessToken returns a valid access token, refreshing and persisting it when
// it has expired.
func (w *Whoop) accessToken(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tok, err := w.tokens.Load()
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", NewProviderError(ProviderAuthExpired, WhoopSourceName, "no activity token stored; run activity-auth", nil)
	}
	if tok.Valid() {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		return "", NewProviderError(ProviderAuthExpired, WhoopSourceName, "activity token expired and cannot be refreshed", nil)
	}

	fresh, err := w.oauth.TokenSource(w.oauthContext(ctx), tok).Token()
	if err != nil {
		return "", w.tokenErr(err)
	}
	if err := w.tokens.Save(fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

func (w *Whoop) tokenErr(err error) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		switch code := re.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return RateLimitedError(WhoopSourceName, parseRetryAfter(re.Response.Header.Get("Retry-After")), err)
		case code >= 400 && code < 500:
			return NewProviderError(ProviderAuthExpired, WhoopSourceName, "token refresh rejected", err)
		}
	}
	return NewProviderError(ProviderUnavailable, WhoopSourceName, "token refresh failed", err)
}

func (w *Whoop) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, w.httpClient)
}
