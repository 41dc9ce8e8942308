package domain

import "errors"

var (
	ErrConnectionExists   = errors.New("connection already registered")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrRegistryClosed     = errors.New("registry is closed")
)
