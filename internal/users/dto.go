package users

import (
	"strings"

	"github.com/shoptrace/shoptrace-api/pkg/db/models"
)

// CreateUserDTO carries the fields needed to register a user.
type CreateUserDTO struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=1,max=120"`
}

// ToModel maps the DTO onto a fresh user model.
func (d CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email: strings.ToLower(strings.TrimSpace(d.Email)),
		Name:  strings.TrimSpace(d.Name),
	}
}
