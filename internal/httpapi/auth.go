package httpapi

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"bingopos/backend/internal/domain"
)

const tokenIssuer = "bingopos"

// Authenticator checks cashier credentials and reloads cashiers named by a
// token. *service.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password string) (domain.Actor, error)
	ResolveActor(ctx context.Context, cashierID string) (domain.Actor, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	cashiers Authenticator
	now      func() time.Time
}

type cashierClaims struct {
	jwtlib.RegisteredClaims
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, cashiers Authenticator) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		cashiers: cashiers,
		now:      time.Now,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	actor, err := a.cashiers.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(actor, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		CashierID:   actor.ID,
		FullName:    actor.Name,
		Permissions: slices.Clone(actor.Permissions),
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken validates the signature and expiry and returns the actor the
// token was issued to, as it was at login time.
func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &cashierClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{
		ID:          sub,
		Username:    claims.Username,
		Name:        claims.Name,
		Permissions: claims.Permissions,
	}, nil
}

// Resolve parses the token and reloads the cashier, so a deactivated
// cashier or a revoked permission stops working before the token expires.
func (a *AuthManager) Resolve(ctx context.Context, tokenStr string) (domain.Actor, error) {
	actor, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	if a.cashiers == nil {
		return actor, nil
	}
	return a.cashiers.ResolveActor(ctx, actor.ID)
}

func (a *AuthManager) sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := cashierClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Username:    actor.Username,
		Name:        actor.Name,
		Permissions: actor.Permissions,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
