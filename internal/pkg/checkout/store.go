package checkout

import (
	"encoding/json"
	"time"

	"github.com/loadway/Loadway/internal/pkg/cache"
)

const (
	sessionKeyPrefix = "checkout:session:"
	sessionTTL       = 2 * time.Hour
)

// SessionStore persists checkout sessions in the cache between requests.
type SessionStore struct{}

func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

func (st *SessionStore) Save(s *CheckoutSession) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return cache.Set(sessionKeyPrefix+s.ID, data, sessionTTL)
}

func (st *SessionStore) Load(sessionID string) (*CheckoutSession, error) {
	data, err := cache.Get(sessionKeyPrefix + sessionID)
	if err != nil {
		if cache.IsNil(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var s CheckoutSession
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *SessionStore) Delete(sessionID string) error {
	return cache.Delete(sessionKeyPrefix + sessionID)
}
