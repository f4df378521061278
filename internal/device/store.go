package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wrenfold/haptic-core/internal/infrastructure/database"
)

// Store persists known-device identities across restarts: which devices
// have been seen, which protocol matched them, and any user-assigned
// display name. Command and sensor history is deliberately not stored.
type Store struct {
	db *database.DB
}

// KnownDevice is one row of the known-device table.
type KnownDevice struct {
	Identity    Identity
	Protocol    string
	DisplayName string
	FirstSeen   time.Time
	LastSeen    time.Time
}

const knownDeviceSchema = `
CREATE TABLE IF NOT EXISTS known_devices (
	key          TEXT PRIMARY KEY,
	transport    TEXT NOT NULL,
	address      TEXT NOT NULL,
	name         TEXT NOT NULL,
	protocol     TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	first_seen   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewStore creates the known-device store, initializing the schema.
func NewStore(db *database.DB) (*Store, error) {
	if _, err := db.ExecContext(context.Background(), knownDeviceSchema); err != nil {
		return nil, fmt.Errorf("initializing known-device schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Remember upserts a device sighting: inserts on first sight, refreshes
// name, protocol, and last_seen on every subsequent one.
func (s *Store) Remember(ctx context.Context, identity Identity, protocol string) error {
	query := `
		INSERT INTO known_devices (key, transport, address, name, protocol)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			protocol = excluded.protocol,
			last_seen = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.Key(), identity.Transport, identity.Address, identity.Name, protocol,
	)
	if err != nil {
		return fmt.Errorf("remembering device %s: %w", identity.Key(), err)
	}
	return nil
}

// DisplayName returns the user-assigned display name for a device, or
// empty when none is set or the device is unknown.
func (s *Store) DisplayName(ctx context.Context, identity Identity) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT display_name FROM known_devices WHERE key = ?",
		identity.Key(),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading display name for %s: %w", identity.Key(), err)
	}
	return name, nil
}

// SetDisplayName stores a user-assigned display name.
func (s *Store) SetDisplayName(ctx context.Context, identity Identity, name string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE known_devices SET display_name = ? WHERE key = ?",
		name, identity.Key(),
	)
	if err != nil {
		return fmt.Errorf("setting display name for %s: %w", identity.Key(), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting display name for %s: %w", identity.Key(), err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, identity.Key())
	}
	return nil
}

// Known lists every device the store has seen, most recent first.
func (s *Store) Known(ctx context.Context) ([]KnownDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transport, address, name, protocol, display_name, first_seen, last_seen
		FROM known_devices
		ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing known devices: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var devices []KnownDevice
	for rows.Next() {
		var d KnownDevice
		if err := rows.Scan(
			&d.Identity.Transport, &d.Identity.Address, &d.Identity.Name,
			&d.Protocol, &d.DisplayName, &d.FirstSeen, &d.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scanning known device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing known devices: %w", err)
	}
	return devices, nil
}
