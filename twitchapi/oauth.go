// Package twitchapi handles the Twitch OAuth code flow for the chat bot account:
// building the authorize URL, exchanging the code, and refreshing tokens.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// Provider is the oauth_tokens key for the bot token.
const Provider = "twitch"

// OAuth wraps an oauth2.Config pointed at Twitch.
type OAuth struct {
	cfg *oauth2.Config
}

// NewOAuth builds the client. scopes may be space or comma separated.
func NewOAuth(clientID, clientSecret, redirectURI, scopes string) (*OAuth, error) {
	if clientID == "" || redirectURI == "" {
		return nil, errors.New("missing clientID or redirectURI")
	}
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(strings.ReplaceAll(scopes, ",", " ")),
		Endpoint:     twitch.Endpoint,
	}}, nil
}

// SetEndpoint points the client at another authorize and token URL, such as a
// local mock of id.twitch.tv.
func (o *OAuth) SetEndpoint(authURL, tokenURL string) {
	o.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
}

// AuthorizeURL returns the user authorization URL carrying state.
func (o *OAuth) AuthorizeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	if o.cfg.ClientSecret == "" {
		return nil, errors.New("missing client secret")
	}
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("twitch auth code exchange failed: %w", err)
	}
	return tok, nil
}

// Refresh exchanges a refresh token for a new access token. Its signature
// matches oauth.RefreshFunc.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	if o.cfg.ClientSecret == "" || refreshToken == "" {
		return "", "", time.Time{}, "", errors.New("missing clientSecret/refreshToken")
	}
	// An expired token forces the source to hit the token endpoint.
	src := o.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)})
	tok, err := src.Token()
	if err != nil {
		return "", "", time.Time{}, "", fmt.Errorf("twitch refresh failed: %w", err)
	}
	return tok.AccessToken, tok.RefreshToken, Expiry(tok), Scope(tok), nil
}

// Expiry returns the token expiry, defaulting to +60m when the server omitted it.
func Expiry(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return time.Now().Add(60 * time.Minute)
	}
	return tok.Expiry
}

// Scope flattens the "scope" extra, which Twitch returns as a JSON array.
func Scope(tok *oauth2.Token) string {
	switch v := tok.Extra("scope").(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
