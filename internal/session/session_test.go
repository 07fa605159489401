// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/pkg/errutil"
)

func TestSave_CorrectCredentials(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "correct")
	tr := f.transport()

	s := f.login(t, tr, "", "alice", "correct")

	require.NotNil(t, s.Record())
	assert.Equal(t, alice.Key(), s.Record().Key())
	assert.False(t, s.IsNewSession())
	assert.True(t, s.Errors().Empty())

	token := alice.Credentials.RememberToken
	assert.Equal(t, token, tr.Cookies["user_credentials"].Value)
	assert.True(t, tr.Cookies["user_credentials"].ExpiresAt.IsZero(), "session cookie without remember me")
	assert.Equal(t, token, tr.Slots["user_credentials"])

	stored := f.load(t, "alice")
	assert.Equal(t, 1, stored.LoginCount)
	require.NotNil(t, stored.CurrentLoginAt)
	assert.Equal(t, f.now, *stored.CurrentLoginAt)
	assert.Equal(t, tr.Origin, stored.CurrentLoginIP)
	require.NotNil(t, stored.LastRequestAt)
}

func TestSave_WrongSecret(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	tr := f.transport()

	s, err := f.engine.NewWithCredentials(tr, "", "alice", "wrong")
	require.NoError(t, err)
	ok, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Nil(t, s.Record())
	assert.Equal(t, []string{"is invalid"}, s.Errors().On("password"))
	assert.Empty(t, tr.Cookies)
	assert.Empty(t, tr.Slots)

	stored := f.load(t, "alice")
	assert.Equal(t, 1, stored.FailedLoginCount)
	assert.Zero(t, stored.LoginCount)
}

func TestValidate_Credentials(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")

	tests := []struct {
		name   string
		login  string
		secret string
		field  string
		want   []string
	}{
		{"blank login", "", "correct", "login", []string{"can not be blank"}},
		{"blank secret", "alice", "", "password", []string{"can not be blank"}},
		{"unknown login", "bob", "correct", "login", []string{"was not found"}},
		{"wrong secret", "alice", "nope", "password", []string{"is invalid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := f.engine.NewWithCredentials(f.transport(), "", tt.login, tt.secret)
			require.NoError(t, err)
			ok, err := s.Validate(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, tt.want, s.Errors().On(tt.field))
			assert.Nil(t, s.Record())
		})
	}

	t.Run("both blank reports both fields", func(t *testing.T) {
		s, err := f.engine.NewWithCredentials(f.transport(), "", "", "")
		require.NoError(t, err)
		ok, err := s.Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, s.Errors(), 2)
		assert.Equal(t, "login", s.Errors()[0].Field)
		assert.Equal(t, "password", s.Errors()[1].Field)
	})

	t.Run("login lookup is case insensitive", func(t *testing.T) {
		s, err := f.engine.NewWithCredentials(f.transport(), "", "ALICE", "correct")
		require.NoError(t, err)
		ok, err := s.Validate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestValidate_UnauthorizedRecord(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "correct")

	t.Run("blank record", func(t *testing.T) {
		s, err := f.engine.NewWithRecord(f.transport(), "", nil)
		require.NoError(t, err)
		ok, err := s.Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"can not log in with a blank record"}, s.Errors().BaseMessages())
	})

	t.Run("new record", func(t *testing.T) {
		fresh, err := identity.NewAccount("newbie")
		require.NoError(t, err)
		s, err := f.engine.NewWithRecord(f.transport(), "", fresh)
		require.NoError(t, err)
		ok, err := s.Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"can not login with a new record"}, s.Errors().BaseMessages())
	})

	t.Run("persisted record skips secret check", func(t *testing.T) {
		s, err := f.engine.NewWithRecord(f.transport(), "", alice)
		require.NoError(t, err)
		ok, err := s.Validate(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, alice.Key(), s.Record().Key())
	})
}

func TestValidate_NoCredentials(t *testing.T) {
	f := newFixture(t)
	s, err := f.engine.New(f.transport(), "")
	require.NoError(t, err)

	ok, err := s.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, session.ModeNone, s.Mode())
	assert.Equal(t, []string{"You did not provide any details for authentication."}, s.Errors().BaseMessages())
}

func TestValidate_StatusGates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*identity.Account)
		want  []string
	}{
		{
			name:  "not approved",
			setup: func(a *identity.Account) { a.SetStatus(identity.StatusApproved, false) },
			want:  []string{"account has not been approved"},
		},
		{
			name: "approved but not confirmed",
			setup: func(a *identity.Account) {
				a.SetStatus(identity.StatusApproved, true)
				a.SetStatus(identity.StatusConfirmed, false)
			},
			want: []string{"account has not been confirmed"},
		},
		{
			name:  "not active",
			setup: func(a *identity.Account) { a.SetStatus(identity.StatusActive, false) },
			want:  []string{"account has not been activated"},
		},
		{
			name: "first failing gate wins",
			setup: func(a *identity.Account) {
				a.SetStatus(identity.StatusApproved, false)
				a.SetStatus(identity.StatusActive, false)
			},
			want: []string{"account has not been approved"},
		},
		{
			name: "all gates pass",
			setup: func(a *identity.Account) {
				a.SetStatus(identity.StatusApproved, true)
				a.SetStatus(identity.StatusConfirmed, true)
				a.SetStatus(identity.StatusActive, true)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.register(t, "alice", "correct", tt.setup)
			tr := f.transport()

			s, err := f.engine.NewWithCredentials(tr, "", "alice", "correct")
			require.NoError(t, err)
			ok, err := s.Save(context.Background())
			require.NoError(t, err)

			if tt.want == nil {
				assert.True(t, ok)
				return
			}
			assert.False(t, ok)
			assert.Nil(t, s.Record())
			assert.Equal(t, tt.want, s.Errors().BaseMessages())
			assert.Empty(t, tr.Cookies)
		})
	}
}

func TestSave_RememberMe(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	tr := f.transport()

	s, err := f.engine.NewWithCredentials(tr, "", "alice", "correct")
	require.NoError(t, err)
	s.SetRememberMe(true)
	ok, err := s.Save(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, f.now.Add(f.engine.Config().RememberFor), tr.Cookies["user_credentials"].ExpiresAt)
}

func TestSave_MintsMissingToken(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "correct")
	alice.Credentials.RememberToken = ""
	require.NoError(t, f.repo.Save(context.Background(), alice))

	tr := f.transport()
	f.login(t, tr, "", "alice", "correct")

	stored := f.load(t, "alice")
	assert.NotEmpty(t, stored.Credentials.RememberToken)
	assert.Equal(t, stored.Credentials.RememberToken, tr.Slots["user_credentials"])
}

func TestSave_ScopedKeys(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	tr := f.transport()

	f.login(t, tr, "secure", "alice", "correct")

	assert.Contains(t, tr.Cookies, "secure_user_credentials")
	assert.Contains(t, tr.Slots, "secure_user_credentials")
	assert.NotContains(t, tr.Slots, "user_credentials")
}

func TestSave_PersistsThroughPersister(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	p := &recordingPersister{repo: f.repo}
	engine := f.engine.WithPersister(p)

	s, err := engine.NewWithCredentials(f.transport(), "", "alice", "correct")
	require.NoError(t, err)
	ok, err := s.Save(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []bool{true}, p.calls)
}

func TestSave_RepeatedSaveDoesNotCountLoginTwice(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")

	s := f.login(t, f.transport(), "", "alice", "correct")
	ok, err := s.Save(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, f.load(t, "alice").LoginCount)
}

func TestSaveStrict(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")

	s, err := f.engine.NewWithCredentials(f.transport(), "", "alice", "wrong")
	require.NoError(t, err)

	err = s.SaveStrict(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	var invalid *session.InvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Same(t, s, invalid.Session)
	assert.Contains(t, err.Error(), "password is invalid")

	s.SetCredentials("alice", "correct")
	assert.NoError(t, s.SaveStrict(context.Background()))
}

func TestSave_PersistFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "correct")

	repo := new(mockRepository)
	repo.On("FindBy", mock.Anything, "login", "alice").Return(alice.Clone(), nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	engine, err := session.NewEngine(session.DefaultConfig(), repo, f.creds)
	require.NoError(t, err)
	s, err := engine.NewWithCredentials(f.transport(), "", "alice", "correct")
	require.NoError(t, err)

	ok, err := s.Save(context.Background())
	assert.False(t, ok)
	errutil.AssertErrorCode(t, err, "SESSION_SAVE_FAILED")
	assert.True(t, s.IsNewSession())
	repo.AssertExpectations(t)
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	tr := f.transport()
	s := f.login(t, tr, "", "alice", "correct")

	s.Destroy(context.Background())

	assert.Nil(t, s.Record())
	assert.True(t, s.Errors().Empty())
	assert.NotContains(t, tr.Cookies, "user_credentials")
	assert.NotContains(t, tr.Slots, "user_credentials")

	_, err := f.engine.Find(context.Background(), tr, "")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestNew_RequiresTransport(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.New(nil, "")
	errutil.AssertErrorCode(t, err, "SESSION_NO_TRANSPORT")

	_, err = f.engine.NewWithCredentials(nil, "", "alice", "correct")
	errutil.AssertErrorCode(t, err, "SESSION_NO_TRANSPORT")

	_, err = f.engine.Find(context.Background(), nil, "")
	errutil.AssertErrorCode(t, err, "SESSION_NO_TRANSPORT")
}
