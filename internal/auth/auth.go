// Package auth handles JWT token generation/validation and password hashing
// for the users declared in the server configuration.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for unknown users and
// wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims represents JWT claims for a user session.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// User is an account that may log in.
type User struct {
	Username     string
	PasswordHash string
	Role         string
}

// Auth handles authentication operations.
type Auth struct {
	jwtSecret     []byte
	tokenDuration time.Duration
	users         map[string]User
	now           func() time.Time
}

// New creates a new Auth instance. A non-positive ttl falls back to one hour.
func New(jwtSecret string, ttl time.Duration, users []User) *Auth {
	if ttl <= 0 {
		ttl = time.Hour
	}
	a := &Auth{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: ttl,
		users:         make(map[string]User, len(users)),
		now:           time.Now,
	}
	for _, u := range users {
		a.users[u.Username] = u
	}
	return a
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies a password against a bcrypt hash.
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Authenticate checks a username and password against the configured users.
func (a *Auth) Authenticate(username, password string) (*User, error) {
	u, ok := a.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := CheckPassword(password, u.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// GenerateJWT creates a signed JWT token for a user.
func (a *Auth) GenerateJWT(username, role string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.tokenDuration)
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "shutterscope",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

// ValidateJWT parses and validates a JWT token.
func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
