// Package registrations stores the customer-created events seen by the
// registration worker.
package registrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/winfrey-Git/customer-portal/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Save records a registration. Replaying an event id is a no-op, and the
// returned bool reports whether a row was inserted.
func (r *Repository) Save(ctx context.Context, reg *domain.CustomerRegistration) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO customer_registrations
			(event_id, customer_no, name, email, city, country_code, template_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, reg.EventID, reg.CustomerNo, reg.Name, reg.Email, reg.City, reg.CountryCode, reg.TemplateCode, reg.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert registration %s: %w", reg.EventID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// GetByCustomerNo returns the registration for customerNo, or nil when the
// customer was never registered through the portal.
func (r *Repository) GetByCustomerNo(ctx context.Context, customerNo string) (*domain.CustomerRegistration, error) {
	reg := &domain.CustomerRegistration{}

	err := r.db.QueryRowContext(ctx, `
		SELECT event_id, customer_no, name, email, city, country_code, template_code, created_at, recorded_at
		FROM customer_registrations
		WHERE customer_no = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, customerNo).Scan(
		&reg.EventID, &reg.CustomerNo, &reg.Name, &reg.Email, &reg.City,
		&reg.CountryCode, &reg.TemplateCode, &reg.CreatedAt, &reg.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return reg, nil
}

// List returns the most recent registrations first.
func (r *Repository) List(ctx context.Context, limit int) ([]domain.CustomerRegistration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, customer_no, name, email, city, country_code, template_code, created_at, recorded_at
		FROM customer_registrations
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	regs := []domain.CustomerRegistration{}
	for rows.Next() {
		var reg domain.CustomerRegistration
		if err := rows.Scan(
			&reg.EventID, &reg.CustomerNo, &reg.Name, &reg.Email, &reg.City,
			&reg.CountryCode, &reg.TemplateCode, &reg.CreatedAt, &reg.RecordedAt,
		); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return regs, nil
}
