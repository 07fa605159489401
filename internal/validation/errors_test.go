// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/validation"
)

func TestErrors_AddKeepsOrder(t *testing.T) {
	var errs validation.Errors
	errs.Add("login", "can not be blank")
	errs.AddBase("account has not been approved")
	errs.Add("password", "can not be blank")

	require.Len(t, errs, 3)
	assert.Equal(t, "login", errs[0].Field)
	assert.True(t, errs[1].IsBase())
	assert.Equal(t, []string{"can not be blank"}, errs.On("password"))
	assert.Equal(t, []string{"account has not been approved"}, errs.BaseMessages())
}

func TestErrors_Err(t *testing.T) {
	var errs validation.Errors
	assert.NoError(t, errs.Err())

	errs.Add("login", "was not found")
	err := errs.Err()
	require.Error(t, err)
	assert.Equal(t, "login was not found", err.Error())

	var target *validation.Errors
	require.True(t, errors.As(err, &target))
	assert.Len(t, *target, 1)
}

func TestErrors_ClearAndMerge(t *testing.T) {
	var errs validation.Errors
	errs.AddBase("first")

	var more validation.Errors
	more.Add("password", "is too short")
	errs.Merge(more)
	assert.Equal(t, "first; password is too short", errs.Err().Error())

	errs.Clear()
	assert.True(t, errs.Empty())
}
