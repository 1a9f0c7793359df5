// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnsureDeviceID returns this device's stable identity, generating and
// persisting a fresh UUID on first call. The id survives sign-out (the
// queue is cleared, the device is still the same device) and travels in
// the auth token's `did` claim.
func EnsureDeviceID(db *sql.DB) (string, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _sync_device (
			id        INTEGER PRIMARY KEY CHECK (id = 1),
			device_id TEXT NOT NULL
		)
	`); err != nil {
		return "", fmt.Errorf("failed to create device table: %w", err)
	}

	var deviceID string
	err := db.QueryRow(`SELECT device_id FROM _sync_device WHERE id = 1`).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.New().String()
		if _, err := db.Exec(`INSERT INTO _sync_device (id, device_id) VALUES (1, ?)`, deviceID); err != nil {
			return "", fmt.Errorf("failed to persist device id: %w", err)
		}
		return deviceID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query device id: %w", err)
	}
	return deviceID, nil
}
