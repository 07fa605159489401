// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/pkg/errutil"
)

func ptr[T any](v T) *T { return &v }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestDetectFeatures(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    Features
		code    string
	}{
		{
			name:    "bundled schema",
			columns: AllFeatures.columns(),
			want:    AllFeatures,
		},
		{
			name:    "core columns only",
			columns: coreColumns,
			want:    Features{},
		},
		{
			name:    "partial tracking group is ignored",
			columns: append(append([]string(nil), coreColumns...), "login_count", "approved"),
			want:    Features{Approved: true},
		},
		{
			name:    "missing required column",
			columns: []string{"id", "login"},
			code:    "STORE_SCHEMA_INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			rows := pgxmock.NewRows([]string{"column_name"})
			for _, c := range tt.columns {
				rows.AddRow(c)
			}
			mock.ExpectQuery(`SELECT column_name FROM information_schema.columns`).WillReturnRows(rows)

			got, err := DetectFeatures(context.Background(), mock)
			if tt.code != "" {
				errutil.AssertErrorCode(t, err, tt.code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFeatures_QueryError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`information_schema.columns`).WillReturnError(errors.New("connection refused"))

	_, err := DetectFeatures(context.Background(), mock)
	errutil.AssertErrorCode(t, err, "STORE_SCHEMA_FAILED")
}

func TestNewAccountRepository_SQL(t *testing.T) {
	repo := NewAccountRepository(nil, Features{Active: true})

	assert.Equal(t,
		"SELECT id, login, email, crypted_password, password_salt, remember_token, created_at, updated_at, active FROM accounts WHERE ",
		repo.selectSQL)
	assert.Contains(t, repo.upsertSQL, "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)")
	assert.Contains(t, repo.upsertSQL, "ON CONFLICT (id) DO UPDATE SET login = EXCLUDED.login")
	assert.NotContains(t, repo.upsertSQL, "id = EXCLUDED.id")
	assert.NotContains(t, repo.upsertSQL, "created_at = EXCLUDED.created_at")
}

func accountRow(id ulid.ULID, created time.Time) []any {
	return []any{
		id.String(), "alice", ptr("alice@example.com"), "stored", "salt", ptr("tok"), created, created,
		3, ptr(created), ptr(created.Add(time.Hour)), ptr("192.0.2.1"), ptr("192.0.2.2"),
		ptr(created.Add(2 * time.Hour)),
		1, (*time.Time)(nil),
		ptr(true), ptr(false), ptr(true),
	}
}

func TestAccountRepository_FindBy(t *testing.T) {
	id := ulid.Make()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name  string
		field string
		where string
	}{
		{"by id", FieldID, `WHERE id = \$1`},
		{"by login", FieldLogin, `WHERE LOWER\(login\) = LOWER\(\$1\)`},
		{"by email", FieldEmail, `WHERE LOWER\(email\) = LOWER\(\$1\)`},
		{"by remember token", FieldRememberToken, `WHERE remember_token = \$1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repo := NewAccountRepository(mock, AllFeatures)

			rows := pgxmock.NewRows(AllFeatures.columns()).AddRow(accountRow(id, created)...)
			mock.ExpectQuery(`SELECT id, login, .* FROM accounts ` + tt.where).
				WithArgs("value").
				WillReturnRows(rows)

			found, err := repo.FindBy(context.Background(), tt.field, "value")
			require.NoError(t, err)

			acct := found.(*identity.Account)
			assert.Equal(t, id, acct.ID)
			assert.False(t, acct.IsNew())
			assert.Equal(t, "alice", acct.Login)
			assert.Equal(t, "tok", acct.Credentials.RememberToken)
			assert.Equal(t, 3, acct.LoginCount)
			assert.Equal(t, "192.0.2.2", acct.CurrentLoginIP)
			assert.Equal(t, 1, acct.FailedLoginCount)
			assert.Nil(t, acct.LastFailedLoginAt)

			approved, exposed := acct.Status(identity.StatusApproved)
			assert.True(t, exposed)
			assert.True(t, approved)
			confirmed, exposed := acct.Status(identity.StatusConfirmed)
			assert.True(t, exposed)
			assert.False(t, confirmed)
		})
	}
}

func TestAccountRepository_FindBy_CoreOnly(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock, Features{})
	id := ulid.Make()
	now := time.Now().UTC()

	rows := pgxmock.NewRows(coreColumns).
		AddRow(id.String(), "alice", (*string)(nil), "stored", "salt", (*string)(nil), now, now)
	mock.ExpectQuery(`FROM accounts WHERE LOWER\(login\)`).WillReturnRows(rows)

	found, err := repo.FindBy(context.Background(), FieldLogin, "ALICE")
	require.NoError(t, err)

	acct := found.(*identity.Account)
	assert.Empty(t, acct.Credentials.RememberToken)
	_, exposed := acct.Status(identity.StatusActive)
	assert.False(t, exposed, "status without a column is not exposed")
}

func TestAccountRepository_FindBy_Errors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		repo := NewAccountRepository(mock, AllFeatures)
		mock.ExpectQuery(`FROM accounts`).WillReturnRows(pgxmock.NewRows(AllFeatures.columns()))

		_, err := repo.FindBy(context.Background(), FieldLogin, "ghost")
		errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_FOUND")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		mock := newMock(t)
		repo := NewAccountRepository(mock, AllFeatures)
		mock.ExpectQuery(`FROM accounts`).WillReturnError(errors.New("connection refused"))

		_, err := repo.FindBy(context.Background(), FieldLogin, "alice")
		errutil.AssertErrorCode(t, err, "ACCOUNT_FIND_FAILED")
		assert.NotErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("corrupt id", func(t *testing.T) {
		mock := newMock(t)
		repo := NewAccountRepository(mock, Features{})
		now := time.Now()
		mock.ExpectQuery(`FROM accounts`).WillReturnRows(pgxmock.NewRows(coreColumns).
			AddRow("not-a-ulid", "alice", (*string)(nil), "", "", (*string)(nil), now, now))

		_, err := repo.FindBy(context.Background(), FieldID, "not-a-ulid")
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_ID")
	})

	t.Run("unsupported field", func(t *testing.T) {
		repo := NewAccountRepository(nil, AllFeatures)
		_, err := repo.FindBy(context.Background(), "nickname", "x")
		errutil.AssertErrorCode(t, err, "STORE_INVALID_FIELD")
	})
}

func TestAccountRepository_Save(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock, Features{Active: true})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	acct, err := identity.NewAccount("alice")
	require.NoError(t, err)
	acct.Credentials.Stored = "stored"
	acct.Credentials.Salt = "salt"

	mock.ExpectExec(`INSERT INTO accounts \(id, login, .*, active\) VALUES .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(acct.ID.String(), "alice", (*string)(nil), "stored", "salt", (*string)(nil),
			acct.CreatedAt, fixed, ptr(true)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Save(context.Background(), acct))
	assert.False(t, acct.IsNew())
	assert.Equal(t, fixed, acct.UpdatedAt)
	require.NotNil(t, acct.Active)
	assert.True(t, *acct.Active)
	assert.Nil(t, acct.Approved, "columns the table lacks stay unset")
}

func TestAccountRepository_Save_Duplicates(t *testing.T) {
	tests := []struct {
		constraint string
		field      string
	}{
		{"accounts_login_key", FieldLogin},
		{"accounts_email_key", FieldEmail},
		{"accounts_remember_token_key", FieldRememberToken},
		{"accounts_nickname_key", "accounts_nickname_key"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mock := newMock(t)
			repo := NewAccountRepository(mock, AllFeatures)
			acct, err := identity.NewAccount("alice")
			require.NoError(t, err)

			mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(&pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: tt.constraint,
			})

			err = repo.Save(context.Background(), acct)
			errutil.AssertErrorCode(t, err, "STORE_DUPLICATE")
			assert.ErrorIs(t, err, identity.ErrDuplicate)
			assert.Equal(t, tt.field, identity.DuplicateField(err))
			assert.True(t, acct.IsNew())
		})
	}
}

func TestAccountRepository_Save_Errors(t *testing.T) {
	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		repo := NewAccountRepository(mock, AllFeatures)
		acct, err := identity.NewAccount("alice")
		require.NoError(t, err)
		mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(errors.New("connection reset"))

		err = repo.Save(context.Background(), acct)
		errutil.AssertErrorCode(t, err, "ACCOUNT_SAVE_FAILED")
		assert.NotErrorIs(t, err, identity.ErrDuplicate)
	})

	t.Run("unsupported record", func(t *testing.T) {
		repo := NewAccountRepository(nil, AllFeatures)
		err := repo.Save(context.Background(), otherRecord{})
		errutil.AssertErrorCode(t, err, "STORE_UNSUPPORTED_RECORD")
	})
}

func TestAccountRepository_Ping(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock, AllFeatures)

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, repo.Ping(context.Background()))

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("down"))
	errutil.AssertErrorCode(t, repo.Ping(context.Background()), "STORE_UNAVAILABLE")
}

type otherRecord struct{}

func (otherRecord) Key() string                { return "x" }
func (otherRecord) IsNew() bool                { return true }
func (otherRecord) Secrets() *identity.Secrets { return &identity.Secrets{} }
