// Package session holds the signed-in identity. main owns the single
// Session; components subscribe to its transitions instead of reading
// global state.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid identity token")

type State struct {
	OwnerID       string
	Authenticated bool
}

// Change is delivered to subscribers on sign-in and sign-out.
type Change struct {
	Previous State
	Current  State
}

type Session struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(Change)
}

func New() *Session {
	return &Session{subs: make(map[int]func(Change))}
}

func (s *Session) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OwnerID is empty when nobody is signed in.
func (s *Session) OwnerID() string {
	return s.Current().OwnerID
}

// Subscribe registers fn for future transitions and returns a function that
// removes it. fn runs synchronously on the goroutine that changed the state.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SignIn switches to ownerID. Signing in as the current owner is a no-op;
// signing in as someone else implies a sign-out first.
func (s *Session) SignIn(ownerID string) {
	if ownerID == "" {
		return
	}
	current := s.Current()
	if current.Authenticated && current.OwnerID == ownerID {
		return
	}
	if current.Authenticated {
		s.SignOut()
	}
	s.transition(State{OwnerID: ownerID, Authenticated: true})
}

func (s *Session) SignOut() {
	if !s.Current().Authenticated {
		return
	}
	s.transition(State{})
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	change := Change{Previous: s.state, Current: next}
	s.state = next
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Verifier checks HS256 bearer tokens issued by the identity provider and
// extracts the owner id from the subject claim.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) OwnerID(raw string) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
