package mockapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/martinsuchenak/netpulse/internal/model"
)

var (
	ErrBadCredentials = errors.New("incorrect email or password")
	ErrInvalidToken   = errors.New("invalid token")
)

type account struct {
	password string
	user     model.User
}

// authority holds the accounts and signs HS256 access tokens.
type authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	accounts map[string]account
}

func newAuthority(secret []byte, ttl time.Duration, now func() time.Time) *authority {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
	}
	return &authority{
		secret:   secret,
		ttl:      ttl,
		now:      now,
		accounts: make(map[string]account),
	}
}

func (a *authority) addUser(email, password, fullName string) model.User {
	u := model.User{ID: generateID(), Email: email, FullName: fullName, IsActive: true}
	a.mu.Lock()
	a.accounts[email] = account{password: password, user: u}
	a.mu.Unlock()
	return u
}

func (a *authority) authenticate(email, password string) (model.User, error) {
	a.mu.RLock()
	acc, ok := a.accounts[email]
	a.mu.RUnlock()
	if !ok || acc.password != password {
		return model.User{}, ErrBadCredentials
	}
	return acc.user, nil
}

func (a *authority) issue(email string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// verify checks signature and expiry and returns the account holder.
func (a *authority) verify(token string) (model.User, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	a.mu.RLock()
	acc, ok := a.accounts[claims.Subject]
	a.mu.RUnlock()
	if !ok || !acc.user.IsActive {
		return model.User{}, ErrInvalidToken
	}
	return acc.user, nil
}
