package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MrEthical07/tenantauth/clients"
)

// Clients is an in-process clients.Store.
type Clients struct {
	mu   sync.RWMutex
	byID map[string]*clients.Client
}

var _ clients.Store = (*Clients)(nil)

func NewClients() *Clients {
	return &Clients{byID: make(map[string]*clients.Client)}
}

func (s *Clients) FindByID(_ context.Context, id string) (*clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Clients) FindByClientID(_ context.Context, clientID string) (*clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byID {
		if c.ClientID == clientID {
			return c.Clone(), nil
		}
	}
	return nil, clients.ErrNotFound
}

func (s *Clients) Save(_ context.Context, c *clients.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.byID {
		if id != c.ID && other.ClientID == c.ClientID {
			return clients.ErrDuplicate
		}
	}
	s.byID[c.ID] = c.Clone()
	return nil
}

func (s *Clients) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return clients.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// ListByTenant returns the clients of tenantID ordered by client id.
func (s *Clients) ListByTenant(_ context.Context, tenantID string) ([]*clients.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*clients.Client
	for _, c := range s.byID {
		if c.TenantID == tenantID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}
