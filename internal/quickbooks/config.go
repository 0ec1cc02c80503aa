package quickbooks

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

const (
	defaultAuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	defaultTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
)

// Config for the QuickBooks Online client.
type Config struct {
	BaseURL      string // e.g. https://sandbox-quickbooks.api.intuit.com
	RealmID      string // company id
	MinorVersion string
	ClientID     string
	ClientSecret string
	RefreshToken string // exchanged for access tokens on demand
	TokenURL     string
	Timeout      time.Duration
	MaxRetries   int           // extra attempts after the first
	RetryBackoff time.Duration // multiplied by the attempt number
	RatePerSec   float64       // <= 0 disables client-side limiting
	RateBurst    int

	// HTTPClient replaces the OAuth2 transport entirely, e.g. in tests.
	HTTPClient *http.Client
}

// ConfigFrom maps the application config section.
func ConfigFrom(c common.QuickBooksConfig) Config {
	return Config{
		BaseURL:      c.BaseURL,
		RealmID:      c.RealmID,
		MinorVersion: c.MinorVersion,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RefreshToken: c.RefreshToken,
		TokenURL:     c.TokenURL,
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		RatePerSec:   c.RatePerSec,
		RateBurst:    c.RateBurst,
	}
}

// Client talks to the QuickBooks Online accounting API. It implements
// catalog.Source and catalog.Directory and submits bills.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MinorVersion == "" {
		cfg.MinorVersion = "75"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		http:    newHTTPClient(cfg, logger),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// newHTTPClient wraps the default transport with a refresh-token source.
// Without a refresh token requests go out unauthenticated.
func newHTTPClient(cfg Config, logger *slog.Logger) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	if cfg.RefreshToken == "" {
		logger.Warn("quickbooks.auth.disabled", "reason", "no refresh token configured")
		return &http.Client{Timeout: cfg.Timeout}
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   defaultAuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	ts := oauth2.ReuseTokenSource(nil, oc.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken}))
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}
}
