package jwtauth

import (
	"aegis/internal/platform/middleware"
)

// Validator adapts Service to the middleware's token validator port.
type Validator struct {
	service *Service
}

// NewValidator wraps a token service for middleware use.
func NewValidator(service *Service) *Validator {
	return &Validator{service: service}
}

func (v *Validator) Validate(tokenString string) (*middleware.Claims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{UserID: claims.UserID, Role: claims.Role}, nil
}
