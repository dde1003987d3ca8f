package echoapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/eduweave/eduweave/core/user"
)

const (
	claimsContextKey = "userToken"
	tokenAudience    = "authenticated"
	stateAudience    = "oauth-state"
	providerGoogle   = "google"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Valid also requires the access-token audience and a subject. OAuth state tokens share
// the signing key and must not pass as bearer tokens.
func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !c.VerifyAudience(tokenAudience, true) || c.Subject == "" {
		return jwt.NewValidationError("not an access token", jwt.ValidationErrorClaimsInvalid)
	}
	return nil
}

// stateClaims is the signed OAuth state: where to send the browser back to.
type stateClaims struct {
	jwt.StandardClaims
	RedirectTo string `json:"redirect_to"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"` // seconds
	User        user.User `json:"user"`
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authAPI struct {
	s *Server
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *Server) {
	api := authAPI{s: s}

	// un-authed endpoints
	g.POST("/token", api.token)
	g.GET("/authorize", api.authorize)
	g.GET("/callback", api.callback)

	// authed endpoints
	g.POST("/logout", api.logout, jwt)
	g.GET("/user", api.currentUser, jwt)
}

func (s *Server) newClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    s.deps.Conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(s.deps.Conf.Backend.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: usr.Email,
		Role:  usr.Role.String(),
	}
}

// GenerateToken generates a signed JWT token string representing the claims.
func GenerateToken(claims jwt.Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (s *Server) issueToken(usr user.User) (tokenResponse, error) {
	claims := s.newClaims(usr)
	token, err := GenerateToken(claims, s.deps.Conf.SecretKey)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   claims.ExpiresAt - claims.IssuedAt,
		User:        usr,
	}, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(claimsContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// Handlers

func (api *authAPI) token(ctx echo.Context) error {
	if ctx.QueryParam("grant_type") != "password" {
		return errUnsupportedGrant
	}
	var data credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding credentials")
	}
	data.Email = strings.TrimSpace(data.Email)
	if err := api.s.deps.Validate.Struct(data); err != nil {
		return err
	}

	acc, err := api.s.deps.UserSvc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return errAuthenticationFailed
		case user.ErrInactive:
			return errAccountDeactivated
		}
		return errors.Wrap(err, "authenticating")
	}

	res, err := api.s.issueToken(acc.User)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

// logout acknowledges the sign-out. Tokens are stateless: they stay valid until they expire.
func (api *authAPI) logout(ctx echo.Context) error {
	if _, err := getContextClaims(ctx); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authAPI) currentUser(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	acc, err := api.s.deps.UserSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUnauthorized
		}
		return errors.Wrap(err, "getting account")
	}
	if !acc.IsActive {
		return errAccountDeactivated
	}
	return ctx.JSON(http.StatusOK, acc.User)
}

// authorize sends the browser to the identity provider.
func (api *authAPI) authorize(ctx echo.Context) error {
	if ctx.QueryParam("provider") != providerGoogle || api.s.deps.OAuth == nil {
		return errUnsupportedProvider
	}
	redirectTo := ctx.QueryParam("redirect_to")
	if !api.s.allowedRedirect(redirectTo) {
		return errInvalidRedirect
	}

	now := time.Now()
	state, err := GenerateToken(&stateClaims{
		StandardClaims: jwt.StandardClaims{
			Audience:  stateAudience,
			ExpiresAt: now.Add(api.s.deps.Conf.Backend.OAuthStateDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		RedirectTo: redirectTo,
	}, api.s.deps.Conf.SecretKey)
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, api.s.deps.OAuth.AuthCodeURL(state))
}

// callback completes the provider round trip and hands a token to the redirect address.
func (api *authAPI) callback(ctx echo.Context) error {
	redirectTo, err := api.s.parseState(ctx.QueryParam("state"))
	if err != nil {
		return errInvalidState
	}
	fail := func(reason string) error {
		return ctx.Redirect(http.StatusFound, withQuery(redirectTo, "error", reason))
	}
	if api.s.deps.OAuth == nil {
		return fail("unsupported_provider")
	}
	if e := ctx.QueryParam("error"); e != "" {
		return fail(e)
	}

	reqCtx := ctx.Request().Context()
	email, err := api.s.deps.OAuth.Email(reqCtx, ctx.QueryParam("code"))
	if err != nil {
		api.s.deps.Logger.Warn("oauth exchange failed", err)
		return fail("access_denied")
	}
	acc, err := api.s.deps.UserSvc.AuthenticateFederated(reqCtx, email)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrNotFound:
			return fail("unknown_account")
		case user.ErrInactive:
			return fail("account_deactivated")
		}
		return errors.Wrap(err, "authenticating federated account")
	}

	res, err := api.s.issueToken(acc.User)
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, withQuery(redirectTo, "access_token", res.AccessToken))
}

// allowedRedirect only lets the provider send browsers back to the portal.
func (s *Server) allowedRedirect(redirectTo string) bool {
	base := s.deps.Conf.Portal.BaseURL
	if redirectTo == "" || base == "" {
		return false
	}
	return redirectTo == base || strings.HasPrefix(redirectTo, base+"/")
}

func (s *Server) parseState(state string) (string, error) {
	claims := new(stateClaims)
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.deps.Conf.SecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !claims.VerifyAudience(stateAudience, true) || !s.allowedRedirect(claims.RedirectTo) {
		return "", errors.New("invalid state")
	}
	return claims.RedirectTo, nil
}

func withQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
