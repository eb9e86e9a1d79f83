package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/google/uuid"
)

type UserRepository struct {
	store *Store
	tx    *tx
}

// emailTaken проверяет уникальность LOWER(email). Вызывается под store.mu.
func (r *UserRepository) emailTaken(email string, exceptID uuid.UUID) bool {
	for id, u := range r.store.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.emailTaken(user.Email, uuid.Nil) {
		return fmt.Errorf("create user: %w", repository.ErrDuplicate)
	}

	r.store.stamp(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	put(r.tx, r.store.users, user.ID, *user)
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, ok := r.store.users[user.ID]
	if !ok {
		return fmt.Errorf("update user: %w", repository.ErrNotFound)
	}
	if r.emailTaken(user.Email, user.ID) {
		return fmt.Errorf("update user: %w", repository.ErrDuplicate)
	}

	updated := *user
	updated.CreatedAt = existing.CreatedAt
	put(r.tx, r.store.users, user.ID, updated)
	return nil
}

func (r *UserRepository) SetAvailableForBooking(ctx context.Context, id uuid.UUID, available bool, updatedAt time.Time) error {
	return r.setFlag(id, updatedAt, "update faculty availability", func(u *model.User) { u.IsAvailableForBooking = available })
}

func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, updatedAt time.Time) error {
	return r.setFlag(id, updatedAt, "update user activity", func(u *model.User) { u.IsActive = active })
}

func (r *UserRepository) setFlag(id uuid.UUID, updatedAt time.Time, op string, apply func(u *model.User)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	apply(&u)
	u.UpdatedAt = updatedAt
	put(r.tx, r.store.users, id, u)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(func(u *model.User) bool { return strings.EqualFold(u.Email, email) }), nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.first(func(u *model.User) bool { return u.ExternalID == externalID }), nil
}

func (r *UserRepository) GetFacultyByExternalIDs(ctx context.Context, externalIDs []string) ([]*model.User, error) {
	wanted := make(map[string]struct{}, len(externalIDs))
	for _, id := range externalIDs {
		wanted[id] = struct{}{}
	}

	return r.filter(func(u *model.User) bool {
		_, ok := wanted[u.ExternalID]
		return u.IsFaculty() && ok
	}), nil
}

func (r *UserRepository) GetFacultyByEmails(ctx context.Context, emails []string) ([]*model.User, error) {
	wanted := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		wanted[strings.ToLower(e)] = struct{}{}
	}

	return r.filter(func(u *model.User) bool {
		_, ok := wanted[strings.ToLower(u.Email)]
		return u.IsFaculty() && ok
	}), nil
}

func (r *UserRepository) ListFaculty(ctx context.Context) ([]*model.User, error) {
	return r.filter((*model.User).IsFaculty), nil
}

func (r *UserRepository) first(match func(u *model.User) bool) *model.User {
	users := r.filter(match)
	if len(users) == 0 {
		return nil
	}
	return users[0]
}

// filter возвращает копии подходящих пользователей, упорядоченные по email
func (r *UserRepository) filter(match func(u *model.User) bool) []*model.User {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users := []*model.User{}
	for _, u := range r.store.users {
		if match(&u) {
			users = append(users, &u)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Email < users[j].Email
	})
	return users
}
