package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"elibrary-users/internal/identity/models"
)

// InMemory is a map-backed identity store for tests and local runs.
//
// RunInTx serializes transactions among themselves and restores a snapshot
// when the callback fails. Writes made outside a transaction while one is
// running are lost on rollback.
type InMemory struct {
	mu         sync.RWMutex
	txMu       sync.Mutex
	identities map[uuid.UUID]*models.Identity
}

type memTxKey struct{}

func NewInMemory() *InMemory {
	return &InMemory{identities: make(map[uuid.UUID]*models.Identity)}
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return identity.Clone(), nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := normalizeEmail(email)
	for _, identity := range s.identities {
		if normalizeEmail(identity.Email) == want {
			return identity.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	want := normalizeEmail(email)
	return s.exists(func(i *models.Identity) bool { return normalizeEmail(i.Email) == want }), nil
}

func (s *InMemory) ExistsByMatricNumber(_ context.Context, matric string) (bool, error) {
	return s.exists(func(i *models.Identity) bool { return i.MatricNumber != nil && *i.MatricNumber == matric }), nil
}

func (s *InMemory) ExistsByStaffID(_ context.Context, staffID string) (bool, error) {
	return s.exists(func(i *models.Identity) bool { return i.StaffID != nil && *i.StaffID == staffID }), nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Identity, error) {
	return s.filter(func(*models.Identity) bool { return true }), nil
}

func (s *InMemory) ListByRole(_ context.Context, role models.Role) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.Role == role }), nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.Status == status }), nil
}

func (s *InMemory) ListByRoleAndStatus(_ context.Context, role models.Role, status models.Status) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.Role == role && i.Status == status }), nil
}

func (s *InMemory) ListByDepartment(_ context.Context, department string) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.Department != nil && *i.Department == department }), nil
}

// Search matches keyword case-insensitively against email, first and last name.
func (s *InMemory) Search(_ context.Context, keyword string) ([]*models.Identity, error) {
	kw := strings.ToLower(keyword)
	return s.filter(func(i *models.Identity) bool {
		return strings.Contains(strings.ToLower(i.Email), kw) ||
			strings.Contains(strings.ToLower(i.FirstName), kw) ||
			strings.Contains(strings.ToLower(i.LastName), kw)
	}), nil
}

func (s *InMemory) ListExpiredStudents(_ context.Context, currentYear int) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.IsExpiryCandidate(currentYear) }), nil
}

func (s *InMemory) ListStudentsNearingExpiry(_ context.Context, targetYear int) ([]*models.Identity, error) {
	return s.filter(func(i *models.Identity) bool { return i.IsWarningCandidate(targetYear) }), nil
}

func (s *InMemory) CountByRole(_ context.Context, role models.Role) (int64, error) {
	return s.count(func(i *models.Identity) bool { return i.Role == role }), nil
}

func (s *InMemory) CountByStatus(_ context.Context, status models.Status) (int64, error) {
	return s.count(func(i *models.Identity) bool { return i.Status == status }), nil
}

func (s *InMemory) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.identities)), nil
}

func (s *InMemory) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(identity); err != nil {
		return err
	}
	s.identities[identity.ID] = identity.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkUnique(identity); err != nil {
		return err
	}
	s.identities[identity.ID] = identity.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id]; !ok {
		return ErrNotFound
	}
	delete(s.identities, id)
	return nil
}

// DeleteMany removes every listed identity and reports how many existed.
func (s *InMemory) DeleteMany(_ context.Context, ids []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, id := range ids {
		if _, ok := s.identities[id]; ok {
			delete(s.identities, id)
			deleted++
		}
	}
	return deleted, nil
}

// RunInTx runs fn atomically with respect to other transactions. Nested
// calls join the outer transaction.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, struct{}{})); err != nil {
		s.mu.Lock()
		s.identities = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *InMemory) snapshot() map[uuid.UUID]*models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*models.Identity, len(s.identities))
	for id, identity := range s.identities {
		out[id] = identity.Clone()
	}
	return out
}

// checkUnique must be called with mu held.
func (s *InMemory) checkUnique(candidate *models.Identity) error {
	email := normalizeEmail(candidate.Email)
	for id, existing := range s.identities {
		if id == candidate.ID {
			continue
		}
		if normalizeEmail(existing.Email) == email {
			return &UniqueViolation{Field: FieldEmail}
		}
		if sameOptional(existing.MatricNumber, candidate.MatricNumber) {
			return &UniqueViolation{Field: FieldMatricNumber}
		}
		if sameOptional(existing.StaffID, candidate.StaffID) {
			return &UniqueViolation{Field: FieldStaffID}
		}
	}
	return nil
}

func (s *InMemory) exists(match func(*models.Identity) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if match(identity) {
			return true
		}
	}
	return false
}

func (s *InMemory) filter(match func(*models.Identity) bool) []*models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Identity, 0)
	for _, identity := range s.identities {
		if match(identity) {
			out = append(out, identity.Clone())
		}
	}
	sortIdentities(out)
	return out
}

func (s *InMemory) count(match func(*models.Identity) bool) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, identity := range s.identities {
		if match(identity) {
			n++
		}
	}
	return n
}

func sameOptional(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
