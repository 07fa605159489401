// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres stores accounts in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/identity"
)

// Lookup fields accepted by FindBy. They match column names.
const (
	FieldID            = "id"
	FieldLogin         = "login"
	FieldEmail         = "email"
	FieldRememberToken = "remember_token"
)

// poolIface is the subset of pgxpool.Pool the repository uses, so tests can
// substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var coreColumns = []string{
	"id", "login", "email", "crypted_password", "password_salt", "remember_token",
	"created_at", "updated_at",
}

var (
	trackingColumns = []string{
		"login_count", "last_login_at", "current_login_at", "last_login_ip", "current_login_ip",
	}
	activityColumns = []string{"last_request_at"}
	failureColumns  = []string{"failed_login_count", "last_failed_login_at"}
)

// Features lists the optional column groups present on the accounts table.
// Absent groups are neither read nor written.
type Features struct {
	LoginTracking bool
	Activity      bool
	FailedLogins  bool
	Approved      bool
	Confirmed     bool
	Active        bool
}

// AllFeatures is the schema the bundled migrations create.
var AllFeatures = Features{
	LoginTracking: true,
	Activity:      true,
	FailedLogins:  true,
	Approved:      true,
	Confirmed:     true,
	Active:        true,
}

// DetectFeatures inspects the accounts table in the current schema.
func DetectFeatures(ctx context.Context, pool poolIface) (Features, error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'accounts'
	`)
	if err != nil {
		return Features{}, oops.Code("STORE_SCHEMA_FAILED").With("operation", "list columns").Wrap(err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Features{}, oops.Code("STORE_SCHEMA_FAILED").With("operation", "scan column").Wrap(err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return Features{}, oops.Code("STORE_SCHEMA_FAILED").With("operation", "iterate columns").Wrap(err)
	}

	var missing []string
	for _, c := range coreColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Features{}, oops.Code("STORE_SCHEMA_INVALID").
			With("missing", missing).
			Errorf("accounts table is missing required columns: %s", strings.Join(missing, ", "))
	}

	all := func(cols []string) bool {
		for _, c := range cols {
			if !present[c] {
				return false
			}
		}
		return true
	}
	return Features{
		LoginTracking: all(trackingColumns),
		Activity:      all(activityColumns),
		FailedLogins:  all(failureColumns),
		Approved:      present["approved"],
		Confirmed:     present["confirmed"],
		Active:        present["active"],
	}, nil
}

func (f Features) columns() []string {
	cols := append([]string(nil), coreColumns...)
	if f.LoginTracking {
		cols = append(cols, trackingColumns...)
	}
	if f.Activity {
		cols = append(cols, activityColumns...)
	}
	if f.FailedLogins {
		cols = append(cols, failureColumns...)
	}
	if f.Approved {
		cols = append(cols, "approved")
	}
	if f.Confirmed {
		cols = append(cols, "confirmed")
	}
	if f.Active {
		cols = append(cols, "active")
	}
	return cols
}

// AccountRepository implements session.Repository over an accounts table.
type AccountRepository struct {
	pool      poolIface
	features  Features
	selectSQL string
	upsertSQL string
	now       func() time.Time
}

// NewAccountRepository creates a repository for a table with the given
// features. Use DetectFeatures for tables not created by Migrator.
func NewAccountRepository(pool poolIface, features Features) *AccountRepository {
	cols := features.columns()

	placeholders := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "id" && c != "created_at" {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}

	return &AccountRepository{
		pool:      pool,
		features:  features,
		selectSQL: "SELECT " + strings.Join(cols, ", ") + " FROM accounts WHERE ",
		upsertSQL: "INSERT INTO accounts (" + strings.Join(cols, ", ") + ") VALUES (" +
			strings.Join(placeholders, ", ") + ") ON CONFLICT (id) DO UPDATE SET " +
			strings.Join(updates, ", "),
		now: time.Now,
	}
}

// Features returns the column groups this repository reads and writes.
func (r *AccountRepository) Features() Features {
	return r.features
}

// FindBy loads the account whose field equals value. Login and email match
// case-insensitively.
func (r *AccountRepository) FindBy(ctx context.Context, field, value string) (identity.Authenticatable, error) {
	var where string
	switch field {
	case FieldID:
		where = "id = $1"
	case FieldLogin:
		where = "LOWER(login) = LOWER($1)"
	case FieldEmail:
		where = "LOWER(email) = LOWER($1)"
	case FieldRememberToken:
		where = "remember_token = $1"
	default:
		return nil, oops.Code("STORE_INVALID_FIELD").With("field", field).Errorf("unsupported lookup field %q", field)
	}

	acct, err := r.scan(r.pool.QueryRow(ctx, r.selectSQL+where, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("field", field).Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_FIND_FAILED").With("field", field).Wrap(err)
	}
	return acct, nil
}

// Save inserts or updates the account. Status flags left unset on an
// account are written as true when the table has the column.
func (r *AccountRepository) Save(ctx context.Context, id identity.Authenticatable) error {
	acct, ok := id.(*identity.Account)
	if !ok {
		return oops.Code("STORE_UNSUPPORTED_RECORD").
			With("type", fmt.Sprintf("%T", id)).
			Errorf("postgres repository stores *identity.Account only")
	}

	acct.UpdatedAt = r.now()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = acct.UpdatedAt
	}
	for _, flag := range []struct {
		on  bool
		ptr **bool
	}{
		{r.features.Approved, &acct.Approved},
		{r.features.Confirmed, &acct.Confirmed},
		{r.features.Active, &acct.Active},
	} {
		if flag.on && *flag.ptr == nil {
			v := true
			*flag.ptr = &v
		}
	}

	if _, err := r.pool.Exec(ctx, r.upsertSQL, r.values(acct)...); err != nil {
		if field, dup := duplicateField(err); dup {
			return oops.Code("STORE_DUPLICATE").
				With("field", field).
				With("id", acct.Key()).
				Wrap(&identity.DuplicateError{Field: field})
		}
		return oops.Code("ACCOUNT_SAVE_FAILED").With("id", acct.Key()).Wrap(err)
	}
	acct.MarkPersisted()
	return nil
}

// Ping checks the connection.
func (r *AccountRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return oops.Code("STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func (r *AccountRepository) values(a *identity.Account) []any {
	vals := []any{
		a.ID.String(), a.Login, a.Email, a.Credentials.Stored, a.Credentials.Salt,
		nullable(a.Credentials.RememberToken), a.CreatedAt, a.UpdatedAt,
	}
	if r.features.LoginTracking {
		vals = append(vals, a.LoginCount, a.LastLoginAt, a.CurrentLoginAt,
			nullable(a.LastLoginIP), nullable(a.CurrentLoginIP))
	}
	if r.features.Activity {
		vals = append(vals, a.LastRequestAt)
	}
	if r.features.FailedLogins {
		vals = append(vals, a.FailedLoginCount, a.LastFailedLoginAt)
	}
	if r.features.Approved {
		vals = append(vals, a.Approved)
	}
	if r.features.Confirmed {
		vals = append(vals, a.Confirmed)
	}
	if r.features.Active {
		vals = append(vals, a.Active)
	}
	return vals
}

// scan reads one row. pgx.ErrNoRows is returned unwrapped.
func (r *AccountRepository) scan(row pgx.Row) (*identity.Account, error) {
	var (
		a                 identity.Account
		idStr             string
		rememberToken     *string
		lastIP, currentIP *string
	)
	dest := []any{
		&idStr, &a.Login, &a.Email, &a.Credentials.Stored, &a.Credentials.Salt,
		&rememberToken, &a.CreatedAt, &a.UpdatedAt,
	}
	if r.features.LoginTracking {
		dest = append(dest, &a.LoginCount, &a.LastLoginAt, &a.CurrentLoginAt, &lastIP, &currentIP)
	}
	if r.features.Activity {
		dest = append(dest, &a.LastRequestAt)
	}
	if r.features.FailedLogins {
		dest = append(dest, &a.FailedLoginCount, &a.LastFailedLoginAt)
	}
	if r.features.Approved {
		dest = append(dest, &a.Approved)
	}
	if r.features.Confirmed {
		dest = append(dest, &a.Confirmed)
	}
	if r.features.Active {
		dest = append(dest, &a.Active)
	}

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers add lookup context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	a.ID = id
	a.Credentials.RememberToken = deref(rememberToken)
	a.LastLoginIP = deref(lastIP)
	a.CurrentLoginIP = deref(currentIP)
	a.MarkPersisted()
	return &a, nil
}

// duplicateField maps a unique violation to the lookup field it protects.
func duplicateField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}
	switch pgErr.ConstraintName {
	case "accounts_login_key":
		return FieldLogin, true
	case "accounts_email_key":
		return FieldEmail, true
	case "accounts_remember_token_key":
		return FieldRememberToken, true
	case "accounts_pkey":
		return FieldID, true
	}
	return pgErr.ConstraintName, true
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
