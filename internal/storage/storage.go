// Package storage provides the key/value store behind skill conversation
// mappings and bot state.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("storage key must not be empty")

// Storage is a JSON document store keyed by string. Implementations must
// give read-after-write consistency per key and tolerate concurrent deletes.
type Storage interface {
	// Read returns the stored documents for keys. Missing keys are absent
	// from the result rather than reported as errors.
	Read(ctx context.Context, keys []string) (map[string]json.RawMessage, error)

	// Write stores every value in changes as JSON, replacing existing documents.
	Write(ctx context.Context, changes map[string]any) error

	// Delete removes keys. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys []string) error
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadOne decodes the document at key into a T. found is false when the key
// does not exist.
func ReadOne[T any](ctx context.Context, s Storage, key string) (value T, found bool, err error) {
	if key == "" {
		return value, false, ErrInvalidKey
	}
	docs, err := s.Read(ctx, []string{key})
	if err != nil {
		return value, false, err
	}
	raw, ok := docs[key]
	if !ok {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return value, true, nil
}

// WriteOne stores v at key.
func WriteOne(ctx context.Context, s Storage, key string, v any) error {
	if key == "" {
		return ErrInvalidKey
	}
	return s.Write(ctx, map[string]any{key: v})
}

func validateKeys(keys []string) error {
	for _, k := range keys {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

func encode(changes map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(changes))
	for k, v := range changes {
		if k == "" {
			return nil, ErrInvalidKey
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		out[k] = data
	}
	return out, nil
}
