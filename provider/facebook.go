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
)

// Facebook credential fields.
const (
	FieldFacebookToken  = "facebook_access_token"
	FieldFacebookUserID = "facebook_user_id"
)

// DefaultGraphURL is the Graph API base.
const DefaultGraphURL = "https://graph.facebook.com"

const maxProviderResponse = 1 << 20

// FacebookVerifier checks a Facebook user access token with the Graph API:
// the token must resolve the claimed user and belong to the configured app.
type FacebookVerifier struct {
	AppID    string
	GraphURL string
	Client   *http.Client
}

// NewFacebookVerifier returns a verifier for appID.
func NewFacebookVerifier(appID string, timeout time.Duration) (*FacebookVerifier, error) {
	if appID == "" {
		return nil, errors.New("provider: facebook app id required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FacebookVerifier{AppID: appID, GraphURL: DefaultGraphURL, Client: &http.Client{Timeout: timeout}}, nil
}

type graphObject struct {
	ID string `json:"id"`
}

// VerifyAssertion implements AssertionVerifier.
func (f *FacebookVerifier) VerifyAssertion(ctx context.Context, cred Credential) (string, error) {
	token, err := cred.Require(FieldFacebookToken)
	if err != nil {
		return "", err
	}
	userID, err := cred.Require(FieldFacebookUserID)
	if err != nil {
		return "", err
	}

	user, err := f.get(ctx, url.PathEscape(userID), token)
	if err != nil {
		return "", err
	}
	if user.ID == "" || user.ID != userID {
		return "", rejectf("facebook token does not belong to user %s", userID)
	}

	app, err := f.get(ctx, "app", token)
	if err != nil {
		return "", err
	}
	if app.ID != f.AppID {
		return "", rejectf("facebook token issued for another app")
	}
	return user.ID, nil
}

func (f *FacebookVerifier) get(ctx context.Context, path, token string) (*graphObject, error) {
	base := strings.TrimRight(f.GraphURL, "/")
	if base == "" {
		base = DefaultGraphURL
	}
	endpoint := base + "/" + path + "?" + url.Values{"access_token": {token}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: graph request: %w", ErrTransient, transportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rejectf("graph api returned status %d", resp.StatusCode)
	}
	var obj graphObject
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponse)).Decode(&obj); err != nil {
		return nil, rejectf("decode graph response: %w", err)
	}
	return &obj, nil
}
