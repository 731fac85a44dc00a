package tokens

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

var errEmptySecret = errors.New("signing secret is empty")

var signingMethod = jwt.SigningMethodHS256

// Sign serializes claims and signs them with secret.
func Sign(claims *Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errEmptySecret
	}
	if !claims.Type.Valid() {
		return "", fmt.Errorf("unknown token type %q", claims.Type)
	}

	token := jwt.NewWithClaims(signingMethod, claims)
	return token.SignedString(secret)
}

// Parse verifies the signature of tokenString against secret and decodes its
// claims. Expiry is deliberately not checked here.
func Parse(tokenString string, secret []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	return claims, nil
}

// PeekType reads the type claim without verifying anything. The result must
// only be used to pick an error message, never to grant access.
func PeekType(tokenString string) (TokenType, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims.Type, nil
}
