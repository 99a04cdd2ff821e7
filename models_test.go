package accounts_test

import (
	"encoding/json"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistration_ToAccount(t *testing.T) {
	pending := accounts.PendingRegistration{
		Name:        "Ann",
		Email:       "ann@x.com",
		Password:    "$2a$10$hash",
		PhoneNumber: "+12015550123",
	}

	account := pending.ToAccount()
	assert.Equal(t, "Ann", account.Name)
	assert.Equal(t, "ann@x.com", account.Email)
	assert.Equal(t, "+12015550123", account.PhoneNumber)
	assert.Equal(t, "$2a$10$hash", account.PasswordHash)
	assert.Equal(t, accounts.RoleUser, account.Role)
}

func TestAccount_JSONHidesPasswordHash(t *testing.T) {
	account := &accounts.Account{Name: "Ann", PasswordHash: "$2a$10$hash"}

	raw, err := json.Marshal(account)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hash")
	assert.NotContains(t, string(raw), "password")
}
