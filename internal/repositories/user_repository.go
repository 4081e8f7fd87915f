package repositories

import "kasir/internal/models"

// UserRepository defines the interface for user data access.
type UserRepository interface {
	GetAll() ([]models.User, error)
	GetByID(id string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Create(user *models.User) error
	Update(user *models.User) error
	Delete(id string) error
	// EmailTaken reports whether another user (excluding excludeID, when
	// non-empty) already uses the given email.
	EmailTaken(email, excludeID string) (bool, error)
}
