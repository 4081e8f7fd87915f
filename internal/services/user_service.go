package services

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"kasir/internal/models"
	"kasir/internal/repositories"
)

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	Name                 string      `json:"name" validate:"required,max=255"`
	Email                string      `json:"email" validate:"required,email,max=255"`
	Password             string      `json:"password" validate:"required,min=8"`
	PasswordConfirmation string      `json:"password_confirmation" validate:"required,eqfield=Password"`
	Role                 models.Role `json:"role" validate:"required,oneof=admin manager cashier"`
}

// UpdateUserRequest is the payload for a partial user update. A nil field
// keeps the stored value; a nil password leaves the stored hash untouched.
type UpdateUserRequest struct {
	Name                 *string      `json:"name" validate:"omitempty,max=255"`
	Email                *string      `json:"email" validate:"omitempty,email,max=255"`
	Password             *string      `json:"password" validate:"omitempty,min=8"`
	PasswordConfirmation *string      `json:"password_confirmation"`
	Role                 *models.Role `json:"role" validate:"omitempty,oneof=admin manager cashier"`
}

// UserService handles business logic related to user management. Every
// operation requires the manage-users capability (admin only).
type UserService struct {
	repo     repositories.UserRepository
	validate *validator.Validate
}

// NewUserService creates a new UserService.
func NewUserService(repo repositories.UserRepository) *UserService {
	return &UserService{
		repo:     repo,
		validate: NewValidator(),
	}
}

// List returns all users. Password hashes never leave the service in
// serialized form (the model excludes them from JSON).
func (s *UserService) List(role models.Role) ([]models.User, error) {
	if !Can(role, ActionManageUsers) {
		return nil, ErrForbidden
	}
	return s.repo.GetAll()
}

// Create validates the request, hashes the password and persists the user.
func (s *UserService) Create(role models.Role, req *CreateUserRequest) (*models.User, error) {
	if !Can(role, ActionManageUsers) {
		return nil, ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	ve := newValidationError()
	taken, err := s.repo.EmailTaken(req.Email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		ve.add("email", "the email has already been taken")
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
		Role:     req.Role,
	}
	if err := s.repo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update applies a partial update to an existing user. The password is
// re-hashed only when supplied, and must then match its confirmation.
func (s *UserService) Update(role models.Role, id string, req *UpdateUserRequest) (*models.User, error) {
	if !Can(role, ActionManageUsers) {
		return nil, ErrForbidden
	}
	user, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, asValidationError(err)
	}

	ve := newValidationError()
	if req.Email != nil {
		taken, err := s.repo.EmailTaken(*req.Email, id)
		if err != nil {
			return nil, err
		}
		if taken {
			ve.add("email", "the email has already been taken")
		}
	}
	if req.Password != nil {
		if req.PasswordConfirmation == nil || *req.PasswordConfirmation != *req.Password {
			ve.add("password", "confirmation does not match")
		}
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashed)
	}

	if err := s.repo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user record.
func (s *UserService) Delete(role models.Role, id string) error {
	if !Can(role, ActionManageUsers) {
		return ErrForbidden
	}
	return s.repo.Delete(id)
}
