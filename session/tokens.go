package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pitabwire/util"
)

const (
	// TokenKey is the canonical storage key of the bearer token.
	TokenKey = "auth_token"
	// RoleKey holds the coarse user role used for UI gating.
	RoleKey = "userRole"

	legacyAccessTokenKey = "accessToken"
	legacyTokenKey       = "token"
)

// legacyTokenKeys are read once, in order, when the canonical key is empty.
var legacyTokenKeys = []string{legacyAccessTokenKey, legacyTokenKey}

// Role is the account type the backend assigned. It only drives what the UI offers,
// the backend enforces authorization on every request.
type Role string

const (
	RoleNone      Role = ""
	RoleApplicant Role = "APPLICANT"
	RoleBusiness  Role = "BUSINESS"
)

// IsTokenKey reports whether key holds, or used to hold, the bearer token.
func IsTokenKey(key string) bool {
	return key == TokenKey || slices.Contains(legacyTokenKeys, key)
}

// Tokens reads and writes the session token and role in a Store.
type Tokens struct {
	store Store
}

// NewTokens wraps store, which is normally already scoped to one visitor.
func NewTokens(store Store) *Tokens {
	return &Tokens{store: store}
}

// Store returns the underlying storage.
func (t *Tokens) Store() Store {
	return t.store
}

// Token returns the current token, empty when anonymous.
// A token found only under a legacy key is moved to the canonical key.
func (t *Tokens) Token(ctx context.Context) (string, error) {
	token, ok, err := t.store.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if ok && token != "" {
		return token, nil
	}

	for _, key := range legacyTokenKeys {
		legacy, found, getErr := t.store.Get(ctx, key)
		if getErr != nil {
			return "", fmt.Errorf("read legacy token %s: %w", key, getErr)
		}
		if !found || legacy == "" {
			continue
		}

		if err = t.SetToken(ctx, legacy); err != nil {
			return "", err
		}
		util.Log(ctx).WithField("legacy_key", key).Info("migrated session token to canonical key")
		return legacy, nil
	}

	return "", nil
}

// SetToken persists token under the canonical key and drops legacy copies.
func (t *Tokens) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("empty session token")
	}
	if err := t.store.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return t.deleteKeys(ctx, legacyTokenKeys...)
}

// Clear removes the token under every key it may live under, and the role.
func (t *Tokens) Clear(ctx context.Context) error {
	return t.deleteKeys(ctx, append([]string{TokenKey, RoleKey}, legacyTokenKeys...)...)
}

func (t *Tokens) deleteKeys(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := t.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Role returns the stored role, RoleNone when unset.
func (t *Tokens) Role(ctx context.Context) (Role, error) {
	role, _, err := t.store.Get(ctx, RoleKey)
	if err != nil {
		return RoleNone, fmt.Errorf("read role: %w", err)
	}
	return Role(role), nil
}

// SetRole stores role, RoleNone removes it.
func (t *Tokens) SetRole(ctx context.Context, role Role) error {
	if role == RoleNone {
		return t.store.Delete(ctx, RoleKey)
	}
	return t.store.Set(ctx, RoleKey, string(role))
}
