package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchbot/internal/logger"
	"lunchbot/internal/models"
)

func TestCustomersRegisterAndFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.json")
	log := logger.New("test")
	r := OpenCustomers(path, log)

	c := models.Customer{
		Phone:   "79991234567",
		Name:    "Иван Петров",
		Address: "ул. Ленина, 1",
		ChatID:  42,
	}
	require.NoError(t, r.Register(c))

	byPhone, ok := r.FindByPhone("79991234567")
	require.True(t, ok)
	assert.Equal(t, "Иван Петров", byPhone.Name)
	assert.Equal(t, models.RoleCustomer, byPhone.Role, "role defaults to customer")

	byChat, ok := r.FindByChat(42)
	require.True(t, ok)
	assert.Equal(t, "79991234567", byChat.Phone)

	_, ok = r.FindByPhone("70000000000")
	assert.False(t, ok)

	err := r.Register(models.Customer{Phone: "79991234567", Name: "Дубль"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	// Registry must survive a reopen.
	reopened := OpenCustomers(path, log)
	assert.Len(t, reopened.All(), 1)
}

func TestCustomersCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.json")
	require.NoError(t, os.WriteFile(path, []byte("]["), 0o644))

	r := OpenCustomers(path, logger.New("test"))
	assert.Empty(t, r.All())
}

func TestAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addresses.json")
	log := logger.New("test")

	a := OpenAddresses(path, log)
	assert.Empty(t, a.All())

	a.Add("ул. Ленина, 1")
	a.Add("пр. Мира, 10")
	assert.Equal(t, []string{"ул. Ленина, 1", "пр. Мира, 10"}, a.All())

	reopened := OpenAddresses(path, log)
	assert.Len(t, reopened.All(), 2)
}
