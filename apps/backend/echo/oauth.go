package echoapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/eduweave/eduweave/core"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// OAuthProvider is a federated identity provider vouching for e-mail addresses.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	// Email exchanges an authorization code for the verified e-mail of the signed-in account.
	Email(ctx context.Context, code string) (string, error)
}

type googleProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

var _ OAuthProvider = (*googleProvider)(nil)

// NewGoogleProvider returns nil when no client is configured.
func NewGoogleProvider(conf *core.Config) OAuthProvider {
	if conf.Google.ClientID == "" {
		return nil
	}
	return &googleProvider{
		conf: &oauth2.Config{
			ClientID:     conf.Google.ClientID,
			ClientSecret: conf.Google.ClientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  conf.Backend.URL + "/auth/v1/callback",
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *googleProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (p *googleProvider) Email(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("missing authorization code")
	}
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return "", errors.Wrap(err, "exchanging code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building userinfo request")
	}
	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching userinfo")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetching userinfo: status %d", resp.StatusCode)
	}

	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", errors.Wrap(err, "decoding userinfo")
	}
	if info.Email == "" || !info.EmailVerified {
		return "", errors.New("e-mail not verified")
	}
	return info.Email, nil
}
