// Package auth issues and verifies the HS256 access tokens the HTTP layer
// authenticates with.
package auth

import (
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims extends the registered claims with the caller's identity. Username
// is what share ownership checks compare against.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string
	Username string
}

func GenerateToken(userID, username string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:   userID,
		Username: username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetClaimsFromToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
