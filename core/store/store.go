// Package store persists session state, the command history and a snapshot
// of the session variables, between runs.
package store

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrNotFound is returned by Get when nothing is stored under a key.
var ErrNotFound = errors.New("no such key")

// Store is a flat key/value store.
type Store interface {
	// Get returns the data stored under key or ErrNotFound.
	Get(key string) ([]byte, error)
	// Put replaces the data stored under key.
	Put(key string, data []byte) error
	// Delete removes key, it's not an error if it didn't exist.
	Delete(key string) error
	Close() error
}

// HistoryKey is the key of a session's command history.
func HistoryKey(session string) string {
	return "history@" + session
}

// VarKey is the key of a session's variable snapshot.
func VarKey(session string) string {
	return "var@" + session
}

// PutValue stores a JSON compatible value under key.
func PutValue(st Store, key string, v any) error {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	data, err := protojson.Marshal(pv)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return st.Put(key, data)
}

// GetValue loads a value stored with PutValue. Numbers come back as float64,
// arrays as []any and objects as map[string]any.
func GetValue(st Store, key string) (any, error) {
	data, err := st.Get(key)
	if err != nil {
		return nil, err
	}
	var pv structpb.Value
	if err := protojson.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return pv.AsInterface(), nil
}

// SaveHistory stores the command history of session.
func SaveHistory(st Store, session string, lines []string) error {
	list := make([]any, len(lines))
	for i, line := range lines {
		list[i] = line
	}
	return PutValue(st, HistoryKey(session), list)
}

// LoadHistory returns the stored command history of session, nil if there is
// none.
func LoadHistory(st Store, session string) ([]string, error) {
	v, err := GetValue(st, HistoryKey(session))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("decoding %s: not a list", HistoryKey(session))
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if line, ok := item.(string); ok {
			out = append(out, line)
		}
	}
	return out, nil
}

// SaveVars stores a variable snapshot of session.
func SaveVars(st Store, session string, home map[string]any) error {
	if home == nil {
		home = map[string]any{}
	}
	return PutValue(st, VarKey(session), home)
}

// LoadVars returns the stored variables of session, nil if there are none.
func LoadVars(st Store, session string) (map[string]any, error) {
	v, err := GetValue(st, VarKey(session))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	home, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding %s: not an object", VarKey(session))
	}
	return home, nil
}
