// Package memory provides in-process implementations of the repository
// interfaces. They back the test suites and the server's no-database mode.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository is a seedable user store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]domain.User
}

func NewUserRepository(seed ...domain.User) *UserRepository {
	r := &UserRepository{users: make(map[primitive.ObjectID]domain.User)}
	for _, u := range seed {
		r.Put(u)
	}
	return r
}

// Put inserts or replaces a user, assigning an id when missing.
func (r *UserRepository) Put(u domain.User) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == primitive.NilObjectID {
		u.ID = primitive.NewObjectID()
	}
	r.users[u.ID] = u
	return u
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetCustomersByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.User{}
	for _, u := range r.users {
		if u.IsCustomer() && u.TrainerID != nil && *u.TrainerID == trainerID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ProtocolRepository keeps protocols in a map.
type ProtocolRepository struct {
	mu        sync.RWMutex
	protocols map[primitive.ObjectID]domain.Protocol
}

func NewProtocolRepository() *ProtocolRepository {
	return &ProtocolRepository{protocols: make(map[primitive.ObjectID]domain.Protocol)}
}

func (r *ProtocolRepository) Create(ctx context.Context, protocol *domain.Protocol) (primitive.ObjectID, error) {
	if protocol.TrainerID == primitive.NilObjectID || protocol.Name == "" {
		return primitive.NilObjectID, errors.New("protocol requires trainerId and name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if protocol.ID == primitive.NilObjectID {
		protocol.ID = primitive.NewObjectID()
	}
	if _, exists := r.protocols[protocol.ID]; exists {
		return primitive.NilObjectID, repository.ErrConflict
	}
	now := time.Now().UTC()
	protocol.CreatedAt = now
	protocol.UpdatedAt = now
	r.protocols[protocol.ID] = protocol.Clone()
	return protocol.ID, nil
}

func (r *ProtocolRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p = p.Clone()
	return &p, nil
}

func (r *ProtocolRepository) GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Protocol{}
	for _, p := range r.protocols {
		if p.TrainerID == trainerID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out, nil
}

func (r *ProtocolRepository) Update(ctx context.Context, protocol *domain.Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.protocols[protocol.ID]
	if !ok || existing.TrainerID != protocol.TrainerID {
		return repository.ErrNotFound
	}
	protocol.CreatedAt = existing.CreatedAt
	protocol.UpdatedAt = time.Now().UTC()
	r.protocols[protocol.ID] = protocol.Clone()
	return nil
}

func (r *ProtocolRepository) Delete(ctx context.Context, id primitive.ObjectID, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.protocols[id]
	if !ok || existing.TrainerID != trainerID {
		return repository.ErrNotFound
	}
	delete(r.protocols, id)
	return nil
}

// AssignmentRepository keeps assignments in a map.
type AssignmentRepository struct {
	mu          sync.RWMutex
	assignments map[primitive.ObjectID]domain.ProtocolAssignment
}

func NewAssignmentRepository() *AssignmentRepository {
	return &AssignmentRepository{assignments: make(map[primitive.ObjectID]domain.ProtocolAssignment)}
}

func (r *AssignmentRepository) Create(ctx context.Context, assignment *domain.ProtocolAssignment) (primitive.ObjectID, error) {
	if assignment.ProtocolID == primitive.NilObjectID || assignment.CustomerID == primitive.NilObjectID || assignment.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("assignment requires protocolId, customerId and trainerId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	if assignment.StartDate.IsZero() {
		assignment.StartDate = now
	}
	if assignment.Status == "" {
		assignment.Status = domain.StatusActive
	}
	r.assignments[assignment.ID] = assignment.Clone()
	return assignment.ID, nil
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProtocolAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a = a.Clone()
	return &a, nil
}

func (r *AssignmentRepository) GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.ProtocolAssignment, error) {
	return r.filter(func(a domain.ProtocolAssignment) bool { return a.TrainerID == trainerID }), nil
}

func (r *AssignmentRepository) GetByCustomerID(ctx context.Context, customerID primitive.ObjectID) ([]domain.ProtocolAssignment, error) {
	return r.filter(func(a domain.ProtocolAssignment) bool { return a.CustomerID == customerID }), nil
}

func (r *AssignmentRepository) filter(keep func(domain.ProtocolAssignment) bool) []domain.ProtocolAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.ProtocolAssignment{}
	for _, a := range r.assignments {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

func (r *AssignmentRepository) Update(ctx context.Context, assignment *domain.ProtocolAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.assignments[assignment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Status = assignment.Status
	existing.EndDate = assignment.EndDate
	existing.Progress = assignment.Progress
	existing.UpdatedAt = time.Now().UTC()
	assignment.UpdatedAt = existing.UpdatedAt
	r.assignments[assignment.ID] = existing.Clone()
	return nil
}

// VersionRepository keeps each protocol's history as an ordered slice.
type VersionRepository struct {
	mu       sync.RWMutex
	versions map[primitive.ObjectID][]domain.ProtocolVersion
}

func NewVersionRepository() *VersionRepository {
	return &VersionRepository{versions: make(map[primitive.ObjectID][]domain.ProtocolVersion)}
}

func (r *VersionRepository) Append(ctx context.Context, version *domain.ProtocolVersion) error {
	if version.ProtocolID == primitive.NilObjectID || version.Version <= 0 {
		return errors.New("version requires protocolId and a positive version number")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions[version.ProtocolID] {
		if v.Version == version.Version {
			return repository.ErrConflict
		}
	}
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	list := append(r.versions[version.ProtocolID], version.Clone())
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	r.versions[version.ProtocolID] = list
	return nil
}

func (r *VersionRepository) Latest(ctx context.Context, protocolID primitive.ObjectID) (*domain.ProtocolVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.versions[protocolID]
	if len(list) == 0 {
		return nil, repository.ErrNotFound
	}
	v := list[len(list)-1].Clone()
	return &v, nil
}

func (r *VersionRepository) Get(ctx context.Context, protocolID primitive.ObjectID, version int) (*domain.ProtocolVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.versions[protocolID] {
		if v.Version == version {
			v = v.Clone()
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *VersionRepository) List(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProtocolVersion, 0, len(r.versions[protocolID]))
	for _, v := range r.versions[protocolID] {
		out = append(out, v.Clone())
	}
	return out, nil
}

func (r *VersionRepository) DeleteByProtocolID(ctx context.Context, protocolID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.versions, protocolID)
	return nil
}

var (
	_ repository.UserRepository       = (*UserRepository)(nil)
	_ repository.ProtocolRepository   = (*ProtocolRepository)(nil)
	_ repository.AssignmentRepository = (*AssignmentRepository)(nil)
	_ repository.VersionRepository    = (*VersionRepository)(nil)
)
