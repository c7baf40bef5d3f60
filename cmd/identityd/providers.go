package main

import (
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/goIdentity/provider"
	"gopkg.in/yaml.v3"
)

// providersFile lists the external providers to enable. Sections left out
// stay disabled. ${VAR} references are expanded from the environment
// before parsing so secrets need not live in the file.
type providersFile struct {
	Timeout    time.Duration      `yaml:"timeout"`
	Apple      *appleSection      `yaml:"apple"`
	GooglePlay *googlePlaySection `yaml:"google_play"`
	Facebook   *facebookSection   `yaml:"facebook"`
	Steam      *steamSection      `yaml:"steam"`
	Cognito    *cognitoSection    `yaml:"cognito"`
}

type appleSection struct {
	AppID string `yaml:"app_id"`
}

type googlePlaySection struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	ApplicationID string `yaml:"application_id"`
}

type facebookSection struct {
	AppID string `yaml:"app_id"`
}

type steamSection struct {
	AppID  string `yaml:"app_id"`
	APIKey string `yaml:"api_key"`
}

type cognitoSection struct {
	Region     string `yaml:"region"`
	UserPoolID string `yaml:"user_pool_id"`
	ClientID   string `yaml:"client_id"`
}

func loadProvidersFile(path string) (*providersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseProviders(data)
}

func parseProviders(data []byte) (*providersFile, error) {
	pf := &providersFile{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), pf); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if pf.Timeout <= 0 {
		pf.Timeout = 5 * time.Second
	}
	return pf, nil
}

// registry builds validators for every configured section. The guest
// validator is added by the Engine builder.
func (pf *providersFile) registry() (*provider.Registry, error) {
	reg := provider.NewRegistry()
	if pf == nil {
		return reg, nil
	}

	if pf.Apple != nil {
		v, err := provider.NewAppleVerifier(pf.Apple.AppID, pf.Timeout)
		if err != nil {
			return nil, fmt.Errorf("apple: %w", err)
		}
		if err := registerAssertion(reg, provider.Apple, v); err != nil {
			return nil, err
		}
	}

	if pf.GooglePlay != nil {
		v, err := provider.NewGooglePlayVerifier(provider.GooglePlayConfig{
			ClientID:      pf.GooglePlay.ClientID,
			ClientSecret:  pf.GooglePlay.ClientSecret,
			ApplicationID: pf.GooglePlay.ApplicationID,
			Timeout:       pf.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("google_play: %w", err)
		}
		if err := registerAssertion(reg, provider.GooglePlay, v); err != nil {
			return nil, err
		}
	}

	if pf.Facebook != nil {
		v, err := provider.NewFacebookVerifier(pf.Facebook.AppID, pf.Timeout)
		if err != nil {
			return nil, fmt.Errorf("facebook: %w", err)
		}
		if err := registerAssertion(reg, provider.Facebook, v); err != nil {
			return nil, err
		}
	}

	if pf.Steam != nil {
		authority, err := provider.NewSteamAuthority(pf.Steam.AppID, pf.Steam.APIKey, pf.Timeout)
		if err != nil {
			return nil, fmt.Errorf("steam: %w", err)
		}
		v, err := provider.NewTicketValidator(provider.Steam, provider.FieldSteamTicket, authority, provider.DefaultTicketRetry())
		if err != nil {
			return nil, fmt.Errorf("steam: %w", err)
		}
		reg.Register(v)
	}

	if pf.Cognito != nil {
		v, err := provider.NewCognitoVerifier(pf.Cognito.Region, pf.Cognito.UserPoolID, pf.Cognito.ClientID, pf.Timeout)
		if err != nil {
			return nil, fmt.Errorf("cognito: %w", err)
		}
		if err := registerAssertion(reg, provider.Cognito, v); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func registerAssertion(reg *provider.Registry, p provider.Provider, v provider.AssertionVerifier) error {
	av, err := provider.NewAssertionValidator(p, v)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	reg.Register(av)
	return nil
}
