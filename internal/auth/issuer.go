package auth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"gridbase/internal/logging"
	"gridbase/internal/observability"
)

// IssuerConfig controls token acquisition against the platform's OIDC issuer.
type IssuerConfig struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	SkipTLSVerify bool
}

// Issuer acquires client-credentials tokens from a discovered OIDC provider.
type Issuer struct {
	cc      clientcredentials.Config
	issuer  string
	client  *http.Client
	logger  *logging.Logger
	metrics *observability.SecurityMetrics
}

// NewIssuer discovers the issuer's token endpoint and prepares a
// client-credentials flow. Metrics may be nil.
func NewIssuer(ctx context.Context, cfg IssuerConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (*Issuer, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("issuer url and client id are required")
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("issuer url must use https")
	}
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	if cfg.SkipTLSVerify {
		logger.Warn("issuer tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
		},
		Timeout: 10 * time.Second,
	}
	discoverCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(discoverCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}

	return &Issuer{
		cc: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     provider.Endpoint().TokenURL,
			Scopes:       cfg.Scopes,
		},
		issuer:  cfg.IssuerURL,
		client:  httpClient,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Acquire fetches a fresh credential. The expiry comes from the token
// response, falling back to the JWT exp claim.
func (i *Issuer) Acquire(ctx context.Context) (Credential, error) {
	i.metrics.RecordTokenRequest(ctx, i.issuer)

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, i.client)
	token, err := i.cc.Token(tokenCtx)
	if err != nil {
		i.metrics.RecordTokenFailure(ctx, i.issuer, "token_endpoint")
		i.logger.Warn("token acquisition failed",
			slog.String("issuer", i.issuer),
			slog.String("error", err.Error()),
		)
		return Credential{}, fmt.Errorf("failed to acquire token: %w", err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = TokenExpiry(token.AccessToken)
	}
	i.metrics.RecordTokenSuccess(ctx, i.issuer)
	return Credential{Token: token.AccessToken, ExpiresAt: expiry}, nil
}
