package auth

import (
	"errors"
	"time"

	"hosa-study-board/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an anonymous session stays valid.
const TokenTTL = 30 * 24 * time.Hour

func secret() []byte {
	return []byte(config.AppConfig.JWTSecret)
}

// GenerateAnonymousToken signs a session for the anonymous user uid.
func GenerateAnonymousToken(uid string) (string, error) {
	claims := jwt.MapClaims{
		"sub":       uid,
		"anonymous": true,
		"exp":       time.Now().Add(TokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

func VerifyJWT(tokenString string) (*jwt.Token, error) {
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return jwtToken, nil
}

// GetDataFromToken returns the session's user id.
func GetDataFromToken(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	uid, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", errors.New("token has no subject")
	}
	return uid, nil
}
