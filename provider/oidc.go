package provider

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OIDCVerifier adapts a go-oidc verifier to IDTokenVerifier.
type OIDCVerifier struct {
	Verifier *oidc.IDTokenVerifier
}

func (v OIDCVerifier) Verify(ctx context.Context, raw string) (IDClaims, error) {
	idToken, err := v.Verifier.Verify(ctx, raw)
	if err != nil {
		return IDClaims{}, errors.Wrap(err, "[OIDCVerifier.Verify]")
	}
	var claims IDClaims
	if err := idToken.Claims(&claims); err != nil {
		return IDClaims{}, errors.Wrap(err, "[OIDCVerifier.Verify] claims")
	}
	claims.Subject = idToken.Subject
	return claims, nil
}

// DiscoveryConfig is what NewInteractiveFromDiscovery needs beyond the issuer
// metadata.
type DiscoveryConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// NewInteractiveFromDiscovery reads the issuer's discovery document for the
// endpoints, the JWKS-backed verifier and the revocation endpoint.
func NewInteractiveFromDiscovery(ctx context.Context, cfg DiscoveryConfig, broker Broker, opts ...InteractiveOption) (*Interactive, error) {
	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewInteractiveFromDiscovery] oidc.NewProvider")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}

	var meta struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := p.Claims(&meta); err != nil {
		return nil, errors.Wrap(err, "[NewInteractiveFromDiscovery] provider claims")
	}

	base := []InteractiveOption{
		WithIDTokenVerifier(OIDCVerifier{Verifier: p.Verifier(&oidc.Config{ClientID: cfg.ClientID})}),
	}
	if meta.RevocationEndpoint != "" {
		base = append(base, WithRevocationURL(meta.RevocationEndpoint))
	}
	return NewInteractive(oauthCfg, broker, append(base, opts...)...), nil
}
