package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dnafasttrack/custody-server/internal/models"
)

// MemoryStore is an in-process backend used by tests and the dev profile.
// Reads return copies, so callers can never reach the stored records.
// Append serialization uses a channel-based per-case lock so a blocked
// append can still honor its context deadline.
type MemoryStore struct {
	mu sync.RWMutex

	cases      []models.Case
	samples    []models.Sample
	events     []models.CustodyEvent
	labResults []models.LabResult
	users      []models.User
	labs       []models.Lab

	nextID    map[string]int64
	caseLocks map[string]chan struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    make(map[string]int64),
		caseLocks: make(map[string]chan struct{}),
	}
}

func (s *MemoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// lockCase acquires the per-case append lock, honoring ctx.
func (s *MemoryStore) lockCase(ctx context.Context, caseNumber string) (func(), error) {
	s.mu.Lock()
	ch, ok := s.caseLocks[caseNumber]
	if !ok {
		ch = make(chan struct{}, 1)
		s.caseLocks[caseNumber] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}

func (s *MemoryStore) CreateCase(ctx context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cases {
		if s.cases[i].CaseNumber == c.CaseNumber {
			return ErrDuplicate
		}
	}
	c.ID = s.id("cases")
	c.CreatedAt = time.Now().UTC()
	s.cases = append(s.cases, *c)
	return nil
}

func (s *MemoryStore) FindCase(ctx context.Context, caseNumber string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.cases {
		if s.cases[i].CaseNumber == caseNumber {
			c := s.cases[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCases(ctx context.Context) ([]models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cases := make([]models.Case, len(s.cases))
	copy(cases, s.cases)
	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].PriorityScore != cases[j].PriorityScore {
			return cases[i].PriorityScore > cases[j].PriorityScore
		}
		return cases[i].CreatedAt.Before(cases[j].CreatedAt)
	})
	return cases, nil
}

func (s *MemoryStore) UpdateCaseStatus(ctx context.Context, caseNumber, status string, labAssigned *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cases {
		if s.cases[i].CaseNumber == caseNumber {
			s.cases[i].Status = status
			if labAssigned != nil {
				s.cases[i].LabAssigned = *labAssigned
			}
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CreateSample(ctx context.Context, sm *models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.samples {
		if s.samples[i].Code == sm.Code {
			return ErrDuplicate
		}
	}
	sm.ID = s.id("samples")
	sm.CreatedAt = time.Now().UTC()
	s.samples = append(s.samples, *sm)
	return nil
}

func (s *MemoryStore) SamplesByCase(ctx context.Context, caseNumber string) ([]models.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Sample
	for i := range s.samples {
		if s.samples[i].CaseNumber == caseNumber {
			out = append(out, s.samples[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, caseNumber string, build AppendBuilder) (*models.CustodyEvent, error) {
	unlock, err := s.lockCase(ctx, caseNumber)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prevHash := ""
	var lastSeq int64
	s.mu.RLock()
	for i := range s.events {
		e := &s.events[i]
		if e.CaseNumber == caseNumber && e.Seq > lastSeq {
			lastSeq = e.Seq
			prevHash = e.Hash
		}
	}
	s.mu.RUnlock()

	ev, err := build(prevHash, lastSeq+1)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ev.ID = s.id("custody_events")
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return &ev, nil
}

func (s *MemoryStore) EventsByCase(ctx context.Context, caseNumber string) ([]models.CustodyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CustodyEvent
	for i := range s.events {
		if s.events[i].CaseNumber == caseNumber {
			out = append(out, s.events[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) CreateLabResult(ctx context.Context, r *models.LabResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id("lab_results")
	r.CreatedAt = time.Now().UTC()
	s.labResults = append(s.labResults, *r)
	return nil
}

func (s *MemoryStore) LabResultsByCase(ctx context.Context, caseNumber string) ([]models.LabResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LabResult
	for i := range s.labResults {
		if s.labResults[i].CaseNumber == caseNumber {
			out = append(out, s.labResults[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if strings.EqualFold(s.users[i].Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.ID = s.id("users")
	u.CreatedAt = time.Now().UTC()
	s.users = append(s.users, *u)
	return nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.users {
		if strings.EqualFold(s.users[i].Email, email) {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindUserByAPIToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.users {
		if s.users[i].APIToken == token {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, len(s.users))
	copy(users, s.users)
	return users, nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) CreateLab(ctx context.Context, l *models.Lab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id("labs")
	l.CreatedAt = time.Now().UTC()
	s.labs = append(s.labs, *l)
	return nil
}

func (s *MemoryStore) ListLabs(ctx context.Context) ([]models.Lab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	labs := make([]models.Lab, len(s.labs))
	copy(labs, s.labs)
	return labs, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}
