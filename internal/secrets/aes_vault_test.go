package secrets

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetiq/valet/pkg/schema"
)

// mapStore is a simple in-memory CredentialStore for vault tests.
type mapStore struct {
	data map[string][]byte
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (m *mapStore) StoreCredential(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *mapStore) GetCredential(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", key)
	}
	return v, nil
}

func (m *mapStore) DeleteCredential(_ context.Context, key string) error {
	if _, ok := m.data[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "credential %q not found", key)
	}
	delete(m.data, key)
	return nil
}

func (m *mapStore) ListCredentials(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func testVault(t *testing.T) (*AESVault, *mapStore) {
	t.Helper()
	s := newMapStore()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewAESVault(s, VaultConfig{MasterKey: key})
	require.NoError(t, err)
	return v, s
}

func TestAESVault_StoreAndResolve(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "email-api-token", []byte("brg-secret-123")))

	val, err := v.Resolve(ctx, "email-api-token")
	require.NoError(t, err)
	assert.Equal(t, []byte("brg-secret-123"), val)
}

func TestAESVault_EncryptedAtRest(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "token", []byte("plaintext-value")))

	raw := s.data["token"]
	assert.NotContains(t, string(raw), "plaintext-value")
	assert.Equal(t, byte(envelopeV1), raw[0])
	assert.Greater(t, len(raw), len("plaintext-value"))
}

func TestAESVault_PassphraseDerivation(t *testing.T) {
	s := newMapStore()
	cfg := VaultConfig{
		Passphrase: "my-secure-passphrase",
		Salt:       []byte("valet.credentials.v1"),
		Iterations: 1000, // low for test speed
	}
	v, err := NewAESVault(s, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "k", []byte("value")))

	// A second vault from the same passphrase reads what the first wrote.
	v2, err := NewAESVault(s, cfg)
	require.NoError(t, err)
	val, err := v2.Resolve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), val)
}

func TestAESVault_WrongKeyCannotDecrypt(t *testing.T) {
	s := newMapStore()
	ctx := context.Background()

	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	key2[0] = 0xFF

	v1, _ := NewAESVault(s, VaultConfig{MasterKey: key1})
	require.NoError(t, v1.Store(ctx, "credential", []byte("hidden")))

	v2, _ := NewAESVault(s, VaultConfig{MasterKey: key2})
	_, err := v2.Resolve(ctx, "credential")
	require.Error(t, err)
	var verr *schema.ValetError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.ErrCodeVault, verr.Code)
}

func TestAESVault_CiphertextBoundToCredentialName(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "email-api-token", []byte("secret-a")))
	require.NoError(t, v.Store(ctx, "calendar-api-token", []byte("secret-b")))

	// Copy one sealed row onto the other; resolution must refuse it.
	s.data["calendar-api-token"] = append([]byte(nil), s.data["email-api-token"]...)

	_, err := v.Resolve(ctx, "calendar-api-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar-api-token")
}

func TestAESVault_UnknownEnvelopeVersionRejected(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "token", []byte("value")))
	s.data["token"][0] = 0x7F

	_, err := v.Resolve(ctx, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope version")
}

func TestAESVault_TruncatedEnvelopeRejected(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "token", []byte("value")))
	s.data["token"] = s.data["token"][:4]

	_, err := v.Resolve(ctx, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestAESVault_Delete(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "key", []byte("val")))
	require.NoError(t, v.Delete(ctx, "key"))

	_, err := v.Resolve(ctx, "key")
	require.Error(t, err)
	var verr *schema.ValetError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.ErrCodeNotFound, verr.Code)
}

func TestAESVault_List(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "a_key", []byte("1")))
	require.NoError(t, v.Store(ctx, "b_key", []byte("2")))
	require.NoError(t, v.Store(ctx, "c_key", []byte("3")))

	keys, err := v.List(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestAESVault_Overwrite(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "key", []byte("v1")))
	require.NoError(t, v.Store(ctx, "key", []byte("v2")))

	val, err := v.Resolve(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val)
}

func TestAESVault_ResolveNotFound(t *testing.T) {
	v, _ := testVault(t)

	_, err := v.Resolve(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestAESVault_InvalidKeyLength(t *testing.T) {
	_, err := NewAESVault(newMapStore(), VaultConfig{MasterKey: []byte("too-short")})
	require.Error(t, err)
	var verr *schema.ValetError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, schema.ErrCodeVault, verr.Code)
}

func TestAESVault_UniqueNonces(t *testing.T) {
	v, s := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "key", []byte("same-value")))
	ct1 := append([]byte(nil), s.data["key"]...)

	require.NoError(t, v.Store(ctx, "key", []byte("same-value")))
	ct2 := s.data["key"]

	// Same name and plaintext must still produce fresh ciphertext.
	assert.False(t, bytes.Equal(ct1, ct2))
}

func TestAESVault_EmptyValue(t *testing.T) {
	v, _ := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.Store(ctx, "empty", []byte{}))
	val, err := v.Resolve(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestAESVault_NoKeyOrPassphrase(t *testing.T) {
	_, err := NewAESVault(newMapStore(), VaultConfig{})
	require.Error(t, err)
}

func TestAESVault_PassphraseWithoutSalt(t *testing.T) {
	_, err := NewAESVault(newMapStore(), VaultConfig{Passphrase: "pass"})
	require.Error(t, err)
}
