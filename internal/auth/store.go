package auth

import (
	"sync"

	"golang.org/x/oauth2"
)

// TokenStore keeps OAuth tokens per user in process memory
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*oauth2.Token
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*oauth2.Token)}
}

func (s *TokenStore) Get(userID string) (*oauth2.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[userID]
	if !ok {
		return nil, false
	}
	copied := *tok
	return &copied, true
}

func (s *TokenStore) Put(userID string, tok *oauth2.Token) {
	copied := *tok

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = &copied
}

func (s *TokenStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
}
