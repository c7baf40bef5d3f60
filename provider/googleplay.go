package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// FieldGooglePlayCode holds the server auth code from Play Games sign-in.
const FieldGooglePlayCode = "google_play_auth_token"

// DefaultGamesAPIURL is the Play Games Services API base.
const DefaultGamesAPIURL = "https://www.googleapis.com/games/v1"

// GoogleEndpoint is Google's OAuth2 endpoint. Client credentials travel in
// the form body.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://accounts.google.com/o/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// GooglePlayConfig configures a GooglePlayVerifier.
type GooglePlayConfig struct {
	ClientID     string
	ClientSecret string
	// ApplicationID is the Play Games application the player must belong to.
	ApplicationID string
	// Endpoint overrides the OAuth2 endpoint; defaults to Google's.
	Endpoint    oauth2.Endpoint
	GamesAPIURL string
	Timeout     time.Duration
}

// GooglePlayVerifier exchanges a server auth code for an access token and
// asks the Games API which player it belongs to.
type GooglePlayVerifier struct {
	oauth  *oauth2.Config
	apiURL string
	client *http.Client
}

// NewGooglePlayVerifier validates cfg and returns a verifier.
func NewGooglePlayVerifier(cfg GooglePlayConfig) (*GooglePlayVerifier, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.ApplicationID == "" {
		return nil, errors.New("provider: google play client id, secret and application id required")
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = GoogleEndpoint
	}
	if cfg.GamesAPIURL == "" {
		cfg.GamesAPIURL = DefaultGamesAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &GooglePlayVerifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/games_lite"},
		},
		apiURL: strings.TrimRight(cfg.GamesAPIURL, "/") + "/applications/" + url.PathEscape(cfg.ApplicationID) + "/verify/",
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type playVerifyResponse struct {
	PlayerID string `json:"player_id"`
}

// VerifyAssertion implements AssertionVerifier.
func (g *GooglePlayVerifier) VerifyAssertion(ctx context.Context, cred Credential) (string, error) {
	code, err := cred.Require(FieldGooglePlayCode)
	if err != nil {
		return "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", rejectf("exchange play auth code: %w", transportError(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: games verify: %w", ErrTransient, transportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", rejectf("games verify returned status %d", resp.StatusCode)
	}
	var out playVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponse)).Decode(&out); err != nil {
		return "", rejectf("decode games verify response: %w", err)
	}
	if out.PlayerID == "" {
		return "", rejectf("games verify returned no player id")
	}
	return out.PlayerID, nil
}
