package auth

import (
	"errors"
	"sync"
	"time"

	"agentdeck/internal/storage"
	"agentdeck/pkg/logger"
)

// ErrNoCredential is returned when a service has no stored credential.
var ErrNoCredential = errors.New("no credential for service")

// lastActiveKey is the kv key the last-active pointer survives under.
const lastActiveKey = "last_active_service"

// Credential is a bearer token bound to a service, with the issue time
// the age policy is computed from.
type Credential struct {
	ServiceID   string
	ServiceName string
	ServiceURL  string
	Token       string
	IssuedAt    time.Time
}

// EventKind classifies a credential change.
type EventKind int

const (
	EventAdded EventKind = iota
	EventUpdated
	EventRemoved
)

// Event notifies subscribers of a credential change.
type Event struct {
	Kind      EventKind
	ServiceID string
}

// Store holds credentials in memory with write-through persistence.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	creds      map[string]Credential
	lastActive string
	db         *storage.DB
	subs       []chan Event
}

// NewStore loads persisted credentials into a new store. db may be nil,
// in which case the store is memory-only.
func NewStore(db *storage.DB) (*Store, error) {
	s := &Store{
		creds: make(map[string]Credential),
		db:    db,
	}
	if db == nil {
		return s, nil
	}

	rows, err := db.ListCredentials()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.creds[row.ServiceID] = Credential{
			ServiceID:   row.ServiceID,
			ServiceName: row.ServiceName,
			ServiceURL:  row.ServiceURL,
			Token:       row.Token,
			IssuedAt:    row.IssuedAt,
		}
	}

	// The pointer is only restored if the credential it names survived.
	if last, err := db.KVGet(lastActiveKey); err == nil {
		if _, ok := s.creds[last]; ok {
			s.lastActive = last
		}
	}
	return s, nil
}

// Get returns the credential for a service.
func (s *Store) Get(serviceID string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[serviceID]
	if !ok {
		return Credential{}, ErrNoCredential
	}
	return cred, nil
}

// Set stores a credential, replacing any existing one for the service.
// The service also becomes the last-active one.
func (s *Store) Set(cred Credential) error {
	s.mu.Lock()
	_, existed := s.creds[cred.ServiceID]
	s.creds[cred.ServiceID] = cred
	s.lastActive = cred.ServiceID
	s.mu.Unlock()

	if s.db != nil {
		err := s.db.SaveCredential(storage.CredentialRow{
			ServiceID:   cred.ServiceID,
			ServiceName: cred.ServiceName,
			ServiceURL:  cred.ServiceURL,
			Token:       cred.Token,
			IssuedAt:    cred.IssuedAt,
		})
		if err != nil {
			return err
		}
		if err := s.db.KVSet(lastActiveKey, cred.ServiceID, 0); err != nil {
			logger.Debug().Err(err).Msg("Failed to persist last-active service")
		}
	}

	kind := EventAdded
	if existed {
		kind = EventUpdated
	}
	s.notify(Event{Kind: kind, ServiceID: cred.ServiceID})
	return nil
}

// Remove deletes the credential for a service. Removing an absent
// credential is a no-op.
func (s *Store) Remove(serviceID string) error {
	s.mu.Lock()
	_, existed := s.creds[serviceID]
	delete(s.creds, serviceID)
	wasActive := s.lastActive == serviceID
	if wasActive {
		s.lastActive = ""
	}
	s.mu.Unlock()

	if !existed {
		return nil
	}
	if wasActive && s.db != nil {
		if err := s.db.KVDelete(lastActiveKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Debug().Err(err).Msg("Failed to clear last-active pointer")
		}
	}
	if s.db != nil {
		if err := s.db.DeleteCredential(serviceID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	s.notify(Event{Kind: EventRemoved, ServiceID: serviceID})
	return nil
}

// List returns all stored credentials.
func (s *Store) List() []Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Credential, 0, len(s.creds))
	for _, cred := range s.creds {
		out = append(out, cred)
	}
	return out
}

// SetActive marks a service as the one commands default to. The pointer
// carries no correctness weight, so persistence failures only log.
func (s *Store) SetActive(serviceID string) {
	s.mu.Lock()
	s.lastActive = serviceID
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.KVSet(lastActiveKey, serviceID, 0); err != nil {
			logger.Debug().Err(err).Msg("Failed to persist last-active service")
		}
	}
}

// Active returns the credential for the last-active service, if any.
func (s *Store) Active() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastActive == "" {
		return Credential{}, false
	}
	cred, ok := s.creds[s.lastActive]
	return cred, ok
}

// Subscribe returns a channel of credential change events. The channel
// is buffered; a slow subscriber drops events rather than blocking
// writers.
func (s *Store) Subscribe() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 16)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn().Str("service", ev.ServiceID).Msg("Credential event dropped, subscriber is slow")
		}
	}
}
