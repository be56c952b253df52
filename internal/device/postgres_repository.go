package device

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry is a PostgreSQL implementation of Registry.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgreSQL device registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const deviceColumns = `id, account_id, name, type, push_endpoint, push_public_key, push_auth_key, is_current_device, created_at, updated_at`

// Get retrieves a device by account ID and device ID.
func (r *PostgresRegistry) Get(ctx context.Context, accountID, deviceID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE id = $1 AND account_id = $2
	`

	var d Device
	err := r.pool.QueryRow(ctx, query, deviceID, accountID).Scan(
		&d.ID,
		&d.AccountID,
		&d.Name,
		&d.Type,
		&d.PushEndpoint,
		&d.PushPublicKey,
		&d.PushAuthKey,
		&d.IsCurrentDevice,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	return &d, nil
}

// ListByAccount retrieves all devices for an account.
func (r *PostgresRegistry) ListByAccount(ctx context.Context, accountID string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}
	fetchLimit := limit + 1

	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var d Device
		err := rows.Scan(
			&d.ID,
			&d.AccountID,
			&d.Name,
			&d.Type,
			&d.PushEndpoint,
			&d.PushPublicKey,
			&d.PushAuthKey,
			&d.IsCurrentDevice,
			&d.CreatedAt,
			&d.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		devices = append(devices, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{
		Items: devices,
	}

	if len(devices) > limit {
		result.Items = devices[:limit]
		result.NextCursor = devices[limit-1].ID
	}

	return result, nil
}

// Upsert creates or updates a device record keyed by (account_id, id).
// Returns true if a new record was created, false if updated.
func (r *PostgresRegistry) Upsert(ctx context.Context, device *Device) (bool, error) {
	query := `
		INSERT INTO devices (id, account_id, name, type, push_endpoint, push_public_key, push_auth_key, is_current_device, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			push_endpoint = EXCLUDED.push_endpoint,
			push_public_key = EXCLUDED.push_public_key,
			push_auth_key = EXCLUDED.push_auth_key,
			is_current_device = EXCLUDED.is_current_device,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		device.ID,
		device.AccountID,
		device.Name,
		device.Type,
		device.PushEndpoint,
		device.PushPublicKey,
		device.PushAuthKey,
		device.IsCurrentDevice,
		device.CreatedAt,
		device.UpdatedAt,
	).Scan(&inserted)

	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Delete deletes a device record.
func (r *PostgresRegistry) Delete(ctx context.Context, accountID, deviceID string) error {
	query := `DELETE FROM devices WHERE id = $1 AND account_id = $2`

	result, err := r.pool.Exec(ctx, query, deviceID, accountID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// ClearPushSubscription removes the push endpoint, and the key material when
// clearKeys is set, leaving the device record in place.
func (r *PostgresRegistry) ClearPushSubscription(ctx context.Context, accountID, deviceID string, clearKeys bool) error {
	query := `
		UPDATE devices SET
			push_endpoint = '',
			updated_at = now()
		WHERE id = $1 AND account_id = $2
	`
	if clearKeys {
		query = `
			UPDATE devices SET
				push_endpoint = '',
				push_public_key = '',
				push_auth_key = '',
				updated_at = now()
			WHERE id = $1 AND account_id = $2
		`
	}

	result, err := r.pool.Exec(ctx, query, deviceID, accountID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// Ensure PostgresRegistry implements Registry interface.
var _ Registry = (*PostgresRegistry)(nil)
