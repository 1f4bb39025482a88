package httpapi

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kasirpos/backend/internal/domain"
)

// AuthManager verifies bearer tokens minted by the identity provider and
// holds the bcrypt hash of the manager PIN.
type AuthManager struct {
	secret     []byte
	issuer     string
	managerPIN string
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

func NewAuthManager(secret string, issuer string, managerPIN string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	// An empty PIN stays unhashed, which makes every PIN check fail.
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN != "" {
		hashedPIN, err := hashPassword(managerPIN)
		if err != nil {
			managerPIN = ""
		} else {
			managerPIN = hashedPIN
		}
	}

	return &AuthManager{
		secret:     []byte(secret),
		issuer:     strings.TrimSpace(issuer),
		managerPIN: managerPIN,
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.Actor{}, errors.New("token carries an unknown role")
	}
	return domain.Actor{Subject: sub, Name: strings.TrimSpace(claims.Name), Role: role}, nil
}

// sign mints a token the way the identity provider does. The server never
// issues tokens itself.
func (a *AuthManager) sign(actor domain.Actor, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   actor.Subject,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    a.issuer,
		},
		Role: string(actor.Role),
		Name: actor.Name,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
