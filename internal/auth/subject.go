// ABOUTME: Extracts the current user id from a bearer token without verifying it
// ABOUTME: The server verifies signatures; the client only needs to know who it is

package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// subjectClaims are checked in order; the chat server issues "_id" while
// other issuers use "sub".
var subjectClaims = []string{"_id", "sub", "id", "userId"}

// SubjectFromToken returns the user id carried by a JWT. The signature is
// not checked.
func SubjectFromToken(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	for _, name := range subjectClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no subject claim", ErrInvalidToken)
}

// Subject resolves the token from src and returns its subject.
func Subject(src Source) (string, error) {
	tok, err := src.Token()
	if err != nil {
		return "", err
	}
	return SubjectFromToken(tok)
}
