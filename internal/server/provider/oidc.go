package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/iudanet/playerid/pkg/api"
)

// OIDC обменивает authorization code (PKCE) на id_token и проверяет его
// ключами провайдера. Подходит для Google, Apple и Facebook Login.
type OIDC struct {
	verifier *oidc.IDTokenVerifier
	config   oauth2.Config
}

// NewOIDC creates an exchanger from a ready oauth2 config and verifier.
func NewOIDC(config oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDC {
	return &OIDC{config: config, verifier: verifier}
}

// Discover reads the provider's discovery document at creds.Issuer.
func Discover(ctx context.Context, creds Credentials) (*OIDC, error) {
	p, err := oidc.NewProvider(ctx, creds.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", creds.Issuer, err)
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	config := oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     p.Endpoint(),
		Scopes:       scopes,
	}

	return NewOIDC(config, p.Verifier(&oidc.Config{ClientID: creds.ClientID})), nil
}

type identityClaims struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified any    `json:"email_verified"`
}

// Exchange verifies req.IDToken, or redeems req.AuthCode for one first.
func (o *OIDC) Exchange(ctx context.Context, req api.LinkRequest) (*Identity, error) {
	rawIDToken := req.IDToken
	if rawIDToken == "" {
		var err error
		if rawIDToken, err = o.redeem(ctx, req); err != nil {
			return nil, err
		}
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	var claims identityClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	detail := map[string]any{"issuer": idToken.Issuer}
	if claims.Email != "" {
		detail["email"] = claims.Email
	}
	if claims.Name != "" {
		detail["name"] = claims.Name
	}
	if claims.EmailVerified != nil {
		detail["email_verified"] = claims.EmailVerified
	}

	return &Identity{PartyUserID: idToken.Subject, Detail: detail}, nil
}

func (o *OIDC) redeem(ctx context.Context, req api.LinkRequest) (string, error) {
	if req.AuthCode == "" {
		return "", fmt.Errorf("%w: auth code or id token required", ErrInvalidArtifact)
	}

	// redirect_uri должен совпадать с тем, что использовал клиент
	config := o.config
	config.RedirectURL = req.RedirectURI

	var opts []oauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.CodeVerifier))
	}

	tok, err := config.Exchange(ctx, req.AuthCode, opts...)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		return "", fmt.Errorf("failed to exchange auth code: %w", err)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return "", fmt.Errorf("%w: token response has no id_token", ErrInvalidArtifact)
	}
	return rawIDToken, nil
}
