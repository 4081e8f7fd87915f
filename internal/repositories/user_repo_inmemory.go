package repositories

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"kasir/internal/models"
)

// InMemoryUserRepository is an in-memory implementation of UserRepository,
// used for tests and the "memory" database driver.
type InMemoryUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewInMemoryUserRepository creates a new instance of InMemoryUserRepository.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]models.User),
	}
}

// GetAll returns all users ordered by name.
func (r *InMemoryUserRepository) GetAll() ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// GetByID returns a user by their ID.
func (r *InMemoryUserRepository) GetByID(id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}
	return &user, nil
}

// GetByEmail returns a user by their email.
func (r *InMemoryUserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
}

// Create adds a new user, rejecting duplicate emails the way the database
// unique index would.
func (r *InMemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return fmt.Errorf("email %s violates unique constraint", user.Email)
		}
	}
	r.users[user.ID] = *user
	return nil
}

// Update modifies an existing user.
func (r *InMemoryUserRepository) Update(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("user with ID %s: %w", user.ID, ErrNotFound)
	}
	for _, u := range r.users {
		if u.ID != user.ID && u.Email == user.Email {
			return fmt.Errorf("email %s violates unique constraint", user.Email)
		}
	}
	r.users[user.ID] = *user
	return nil
}

// Delete removes a user by their ID.
func (r *InMemoryUserRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("user with ID %s: %w", id, ErrNotFound)
	}
	delete(r.users, id)
	return nil
}

// EmailTaken reports whether a user other than excludeID uses the email.
func (r *InMemoryUserRepository) EmailTaken(email, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ID != excludeID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}
