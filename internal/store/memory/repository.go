// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory is an in-process account repository for tests and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/identity"
)

// Lookup fields understood by FindBy.
const (
	FieldID            = "id"
	FieldLogin         = "login"
	FieldEmail         = "email"
	FieldRememberToken = "remember_token"
)

// Repository stores accounts in memory. Records are copied in and out so
// callers never share memory with the store.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]*identity.Account
	saves    int
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{accounts: make(map[string]*identity.Account)}
}

// FindBy returns a copy of the account whose field equals value. Logins and
// emails compare case-insensitively.
func (r *Repository) FindBy(_ context.Context, field, value string) (identity.Authenticatable, error) {
	match, err := matcher(field, value)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acct := range r.accounts {
		if match(acct) {
			return acct.Clone(), nil
		}
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").
		With("field", field).
		Wrap(identity.ErrNotFound)
}

func matcher(field, value string) (func(*identity.Account) bool, error) {
	switch field {
	case FieldID:
		return func(a *identity.Account) bool { return a.ID.String() == value }, nil
	case FieldLogin:
		return func(a *identity.Account) bool { return strings.EqualFold(a.Login, value) }, nil
	case FieldEmail:
		return func(a *identity.Account) bool { return a.Email != nil && strings.EqualFold(*a.Email, value) }, nil
	case FieldRememberToken:
		return func(a *identity.Account) bool {
			return value != "" && a.Credentials.RememberToken == value
		}, nil
	default:
		return nil, oops.Code("STORE_INVALID_FIELD").
			With("field", field).
			Errorf("unsupported lookup field %q", field)
	}
}

// Save inserts or replaces the account. Login, email and remember token
// must be unique; login and email compare case-insensitively.
func (r *Repository) Save(_ context.Context, id identity.Authenticatable) error {
	acct, ok := id.(*identity.Account)
	if !ok {
		return oops.Code("STORE_UNSUPPORTED_RECORD").
			With("type", fmt.Sprintf("%T", id)).
			Errorf("memory repository stores *identity.Account only")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := acct.Key()
	for otherKey, other := range r.accounts {
		if otherKey == key {
			continue
		}
		if strings.EqualFold(other.Login, acct.Login) {
			return oops.Code("STORE_DUPLICATE").With("field", FieldLogin).Wrap(&identity.DuplicateError{Field: FieldLogin})
		}
		if acct.Email != nil && other.Email != nil && strings.EqualFold(*other.Email, *acct.Email) {
			return oops.Code("STORE_DUPLICATE").With("field", FieldEmail).Wrap(&identity.DuplicateError{Field: FieldEmail})
		}
		if acct.Credentials.RememberToken != "" && other.Credentials.RememberToken == acct.Credentials.RememberToken {
			return oops.Code("STORE_DUPLICATE").With("field", FieldRememberToken).Wrap(&identity.DuplicateError{Field: FieldRememberToken})
		}
	}

	stored := acct.Clone()
	stored.Credentials.ClearTransient()
	stored.MarkPersisted()
	r.accounts[key] = stored
	r.saves++

	acct.MarkPersisted()
	return nil
}

// Len returns the number of stored accounts.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// Saves returns the number of successful saves.
func (r *Repository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

// Ping always succeeds; it satisfies readiness checks.
func (r *Repository) Ping(context.Context) error {
	return nil
}
