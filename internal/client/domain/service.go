package domain

import (
	"context"
	"errors"
)

type CreateClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type GetClientRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Client, error)
	GetByID(context.Context, GetClientRequest) (Client, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("client_not_found")
)
