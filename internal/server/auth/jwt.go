// Package auth issues and validates the bearer tokens presented on
// protected requests.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/storykeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: the standard registered claims plus the
// owner identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// GenerateToken signs a token for userID that expires validity after now.
func GenerateToken(userID string, secretKey []byte, now time.Time, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies signature, algorithm and expiry and returns
// the embedded user id. Expired tokens yield common.ErrTokenExpired, every
// other failure common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte, opts ...jwt.ParserOption) (string, error) {
	claims := &Claims{}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}

// Issuer binds the signing secret and token lifetime configured at startup.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for userID valid for the configured TTL.
func (i *Issuer) Issue(userID string) (string, error) {
	return GenerateToken(userID, i.secret, i.now(), i.ttl)
}

// Validate returns the user id carried by token.
func (i *Issuer) Validate(token string) (string, error) {
	return GetUserIDFromToken(token, i.secret, jwt.WithTimeFunc(i.now))
}
