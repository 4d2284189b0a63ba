package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

func appendRoleChar(token string, role Role) string {
	switch role {
	case RoleCustomer:
		return token + "1"
	case RoleSeller:
		return token + "2"
	case RoleAdmin:
		return token + "3"
	}
	return token
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleCustomer:
		return "1"
	case RoleSeller:
		return "2"
	case RoleAdmin:
		return "3"
	}
	return ""
}

func CreateToken(viewer Viewer, role Role, validUntil int64) (string, error) {
	secret, ok := RoleSecrets[role]
	if !ok {
		return "", fmt.Errorf("invalid role specified")
	}

	if validUntil == 0 {
		now := time.Now()
		validUntil = now.Add(time.Minute * 15).Unix()
	}

	claims := jwt.MapClaims{
		"id":   viewer.Id,
		"name": viewer.DisplayName,
		"exp":  validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return appendRoleChar(tokenString, role), nil
}

// ParseToken validates the trailing role character before verifying the
// signature against that role's secret.
func ParseToken(tokenString string, role Role) (jwt.MapClaims, error) {
	if len(tokenString) == 0 {
		return nil, fmt.Errorf("token string is empty")
	}

	if tokenString[len(tokenString)-1:] != expectedRoleChar(role) {
		return nil, fmt.Errorf("invalid role character in token")
	}
	tokenString = tokenString[:len(tokenString)-1]

	secret, ok := RoleSecrets[role]
	if !ok {
		return nil, fmt.Errorf("invalid role specified")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid - unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims of unauthorized type")
	}

	return claims, nil
}

// ParseAnyRole tries each known role in turn and reports which one matched.
func ParseAnyRole(tokenString string) (jwt.MapClaims, Role, error) {
	for _, role := range []Role{RoleCustomer, RoleSeller, RoleAdmin} {
		claims, err := ParseToken(tokenString, role)
		if err == nil {
			return claims, role, nil
		}
	}
	return nil, 0, fmt.Errorf("token does not match any role")
}
