package storage

import (
	"database/sql"
	"errors"
	"time"
)

// KVSet sets a key's value; ttl of 0 means the key never expires.
func (db *DB) KVSet(key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	_, err := db.Exec(
		"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	)
	return err
}

// KVGet retrieves a key's value, returning ErrNotFound if absent or
// expired.
func (db *DB) KVGet(key string) (string, error) {
	var value string
	var expiresAt sql.NullTime

	err := db.QueryRow(
		"SELECT value, expires_at FROM kv_store WHERE key = ?",
		key,
	).Scan(&value, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		db.Exec("DELETE FROM kv_store WHERE key = ?", key)
		return "", ErrNotFound
	}

	return value, nil
}

// KVDelete removes a key, returning ErrNotFound if it did not exist.
func (db *DB) KVDelete(key string) error {
	result, err := db.Exec("DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// KVList returns all non-expired key/value pairs whose key starts with
// prefix.
func (db *DB) KVList(prefix string) (map[string]string, error) {
	rows, err := db.Query(
		"SELECT key, value, expires_at FROM kv_store WHERE key LIKE ? || '%'",
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	result := make(map[string]string)

	for rows.Next() {
		var key, value string
		var expiresAt sql.NullTime

		if err := rows.Scan(&key, &value, &expiresAt); err != nil {
			return nil, err
		}

		if expiresAt.Valid && expiresAt.Time.Before(now) {
			continue
		}

		result[key] = value
	}

	return result, rows.Err()
}

// KVCleanExpired deletes all expired keys, returning the count removed.
func (db *DB) KVCleanExpired() (int64, error) {
	result, err := db.Exec(
		"DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now(),
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// KVExists reports whether key exists and has not expired.
func (db *DB) KVExists(key string) (bool, error) {
	var expiresAt sql.NullTime

	err := db.QueryRow(
		"SELECT expires_at FROM kv_store WHERE key = ?",
		key,
	).Scan(&expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		return false, nil
	}

	return true, nil
}
