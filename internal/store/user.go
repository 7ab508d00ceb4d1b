package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StaffUser is an agency operator who signs in to the dashboard.
type StaffUser struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	HashedPassword string    `db:"hashed_password"`
	Role           string    `db:"role"`
	CreatedAt      time.Time `db:"created_at"`
}

const sqlGetStaffUserByEmail = `
SELECT id, email, first_name, last_name, hashed_password, role, created_at
FROM staff_users
WHERE email = $1
`

// GetStaffUserByEmail fetches a staff user by email
func (s *Store) GetStaffUserByEmail(ctx context.Context, email string) (StaffUser, error) {
	var user StaffUser
	err := s.db.GetContext(ctx, &user, sqlGetStaffUserByEmail, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StaffUser{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get staff user by email", err)
		return StaffUser{}, fmt.Errorf("failed to get staff user by email: %w", err)
	}
	return user, nil
}

const sqlGetStaffUserByID = `
SELECT id, email, first_name, last_name, hashed_password, role, created_at
FROM staff_users
WHERE id = $1
`

// GetStaffUserByID fetches a staff user by ID
func (s *Store) GetStaffUserByID(ctx context.Context, id uuid.UUID) (StaffUser, error) {
	var user StaffUser
	err := s.db.GetContext(ctx, &user, sqlGetStaffUserByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StaffUser{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get staff user by id", err)
		return StaffUser{}, fmt.Errorf("failed to get staff user by id: %w", err)
	}
	return user, nil
}

const sqlCreateStaffUser = `
INSERT INTO staff_users (email, first_name, last_name, hashed_password, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, first_name, last_name, hashed_password, role, created_at
`

// CreateStaffUser creates a staff user
func (s *Store) CreateStaffUser(ctx context.Context, email, firstName, lastName, hashedPassword, role string) (StaffUser, error) {
	var user StaffUser
	err := s.db.GetContext(ctx, &user, sqlCreateStaffUser, email, firstName, lastName, hashedPassword, role)
	if err != nil {
		s.logger.Error(ctx, "failed to create staff user", err)
		return StaffUser{}, fmt.Errorf("failed to create staff user: %w", err)
	}
	return user, nil
}
