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

	"github.com/MrEthical07/goIdentity/internal/retry"
)

// FieldSteamTicket holds the hex-encoded Steam session ticket.
const FieldSteamTicket = "steam_auth_token"

// TicketAuthority vouches for a ticket by calling the provider's
// server-to-server API. Retryable failures must wrap ErrTransient.
type TicketAuthority interface {
	Authenticate(ctx context.Context, ticket string) (subject string, err error)
}

// TicketValidator validates tickets with an authority, retrying transient
// failures.
type TicketValidator struct {
	provider  Provider
	field     string
	authority TicketAuthority
	policy    retry.Policy
}

// DefaultTicketRetry retries transient failures five times, one second
// apart.
func DefaultTicketRetry() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		Delay:       time.Second,
		Retryable:   func(err error) bool { return errors.Is(err, ErrTransient) },
	}
}

// NewTicketValidator returns a validator for p reading the ticket from field.
// A zero policy uses DefaultTicketRetry.
func NewTicketValidator(p Provider, field string, authority TicketAuthority, policy retry.Policy) (*TicketValidator, error) {
	if p == "" || field == "" {
		return nil, errors.New("provider: ticket validator needs a provider and field")
	}
	if authority == nil {
		return nil, errors.New("provider: ticket authority required")
	}
	if policy.MaxAttempts == 0 {
		policy = DefaultTicketRetry()
	}
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool { return errors.Is(err, ErrTransient) }
	}
	return &TicketValidator{provider: p, field: field, authority: authority, policy: policy}, nil
}

// Provider implements Validator.
func (t *TicketValidator) Provider() Provider { return t.provider }

// Validate implements Validator.
func (t *TicketValidator) Validate(ctx context.Context, cred Credential) (Identity, error) {
	ticket, err := cred.Require(t.field)
	if err != nil {
		return Identity{}, err
	}

	policy := t.policy
	base := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		observeRetry(ctx, t.provider, attempt, err)
		if base != nil {
			base(attempt, err)
		}
	}

	var subject string
	err = policy.Do(ctx, func(ctx context.Context) error {
		s, err := t.authority.Authenticate(ctx, ticket)
		if err != nil {
			return err
		}
		subject = s
		return nil
	})
	if err != nil {
		return Identity{}, reject(err)
	}
	if subject == "" {
		return Identity{}, rejectf("%s ticket carried no subject", t.provider)
	}
	return Identity{Provider: t.provider, Subject: subject, Scope: ScopeAuthenticated}, nil
}

// DefaultSteamAPIURL is the Steam partner Web API base.
const DefaultSteamAPIURL = "https://partner.steam-api.com"

// steamTicketRetryCode is returned while a freshly issued ticket is not yet
// known to Steam.
const steamTicketRetryCode = 103

// SteamAuthority calls ISteamUserAuth/AuthenticateUserTicket.
type SteamAuthority struct {
	AppID  string
	APIKey string
	APIURL string
	Client *http.Client
}

// NewSteamAuthority returns an authority for appID.
func NewSteamAuthority(appID, apiKey string, timeout time.Duration) (*SteamAuthority, error) {
	if appID == "" || apiKey == "" {
		return nil, errors.New("provider: steam app id and web api key required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SteamAuthority{AppID: appID, APIKey: apiKey, APIURL: DefaultSteamAPIURL, Client: &http.Client{Timeout: timeout}}, nil
}

type steamResponse struct {
	Response struct {
		Params *struct {
			Result          string `json:"result"`
			SteamID         string `json:"steamid"`
			OwnerSteamID    string `json:"ownersteamid"`
			VACBanned       bool   `json:"vacbanned"`
			PublisherBanned bool   `json:"publisherbanned"`
		} `json:"params"`
		Error *struct {
			Code int    `json:"errorcode"`
			Desc string `json:"errordesc"`
		} `json:"error"`
	} `json:"response"`
}

// Authenticate implements TicketAuthority.
func (s *SteamAuthority) Authenticate(ctx context.Context, ticket string) (string, error) {
	base := strings.TrimRight(s.APIURL, "/")
	if base == "" {
		base = DefaultSteamAPIURL
	}
	q := url.Values{"key": {s.APIKey}, "appid": {s.AppID}, "ticket": {ticket}}
	endpoint := base + "/ISteamUserAuth/AuthenticateUserTicket/v1/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: steam request: %w", ErrTransient, transportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: steam returned status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", rejectf("steam returned status %d", resp.StatusCode)
	}

	var body steamResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderResponse)).Decode(&body); err != nil {
		return "", rejectf("decode steam response: %w", err)
	}

	if e := body.Response.Error; e != nil {
		if e.Code == steamTicketRetryCode {
			return "", fmt.Errorf("%w: steam error %d", ErrTransient, e.Code)
		}
		return "", rejectf("steam error %d: %s", e.Code, e.Desc)
	}

	p := body.Response.Params
	if p == nil || p.Result != "OK" {
		return "", rejectf("steam ticket not accepted")
	}
	if p.SteamID == "" {
		return "", rejectf("steam response has no steamid")
	}
	if p.VACBanned || p.PublisherBanned {
		return "", rejectf("%w: steam user %s", ErrBanned, p.SteamID)
	}
	return p.SteamID, nil
}
