package twitter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/goccy/go-json"
	errs "twarchive/pkg/errors"
	"twarchive/pkg/logger"
	"twarchive/pkg/metrics"
	"twarchive/pkg/models"
)

// Credentials are the four OAuth1 user-context secrets
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether every secret is set
func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// NewOAuthHTTPClient returns an http.Client that signs every request with creds
func NewOAuthHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration) *http.Client {
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth1.HTTPClient, base)

	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	client := cfg.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	client.Timeout = timeout
	return client
}

// Client reads the home timeline
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     logger.Logger
	recorder   metrics.Recorder
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another API root
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRecorder reports response status codes
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a timeline client. httpClient is expected to sign
// requests (see NewOAuthHTTPClient).
func NewClient(httpClient *http.Client, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    DefaultAPIBaseURL,
		logger:     log,
		recorder:   metrics.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLatest returns the newest count posts of the home timeline, newest first
func (c *Client) FetchLatest(ctx context.Context, count int) ([]models.RawPost, error) {
	url := HomeTimelineURL(c.baseURL, count)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "build timeline request")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("timeline request failed", map[string]interface{}{
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "home_timeline")
	}
	defer resp.Body.Close()

	c.recorder.RecordTimelineStatus(resp.StatusCode)
	c.logger.DebugWithFields("timeline request completed", map[string]interface{}{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := errs.CheckStatus(resp.StatusCode, "home_timeline"); err != nil {
		c.logger.WarnWithFields("timeline request rejected", map[string]interface{}{
			"status":     resp.StatusCode,
			"rate_reset": resp.Header.Get("x-rate-limit-reset"),
		})
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "read timeline body")
	}

	posts, err := c.decode(body)
	if err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse timeline", map[string]interface{}{
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return nil, err
	}
	return posts, nil
}

func (c *Client) decode(body []byte) ([]models.RawPost, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "decode timeline")
	}

	posts := make([]models.RawPost, 0, len(items))
	for i, item := range items {
		var st status
		if err := json.Unmarshal(item, &st); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeParsing, err, "decode timeline item")
		}
		if st.IDStr == "" {
			c.logger.WarnWithFields("timeline item without id_str skipped", map[string]interface{}{
				"index": i,
			})
			continue
		}
		posts = append(posts, st.toRawPost(item))
	}
	return posts, nil
}
