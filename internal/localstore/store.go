// Package localstore persists the console's small durable state: the
// session blob, UI preferences, notification bookkeeping maps, and the
// previous-subscription snapshot used for transition detection.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known keys. The schema is a flat key/value space; there is no
// migration or versioning scheme.
const (
	KeySession          = "session"
	KeyPreferences      = "app.preferences"
	KeyNotifRead        = "notif.readMap"
	KeyNotifDismissed   = "notif.dismissedMap"
	KeyNotifFirstSeen   = "notif.firstSeenMap"
	KeyPrevSubscription = "notif.prevSubscription"
)

// Store is the durable key-value storage behind the console.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the value for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying storage.
	Close() error
}

// ReadJSON unmarshals the value stored under key into v. It returns false
// with no error when the key is absent.
func ReadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// WriteJSON marshals v and stores it under key.
func WriteJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}
