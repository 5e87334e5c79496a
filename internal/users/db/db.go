package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-booking/internal/database"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateUser inserts u. A taken username or email yields ErrUserExists.
func (d *DB) CreateUser(ctx context.Context, u *models.User) error {
	_, err := d.Bun.NewInsert().Model(u).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return models.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return d.getBy(ctx, "id = ?", id)
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.getBy(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (d *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return d.getBy(ctx, "username = ?", strings.TrimSpace(username))
}

func (d *DB) getBy(ctx context.Context, where string, arg string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}
