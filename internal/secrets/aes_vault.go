package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"

	"github.com/valetiq/valet/pkg/schema"
)

const (
	keySize           = 32
	defaultIterations = 100_000

	// envelopeV1 is the current at-rest layout: one version byte, the GCM
	// nonce, then the sealed credential. The version byte leaves room for
	// re-encrypting under a new derivation without guessing which rows are
	// which.
	envelopeV1 = 0x01

	// credentialInfo prefixes the HKDF info string. Every credential name
	// yields its own sealing key, so a ciphertext copied onto another
	// credential row will not decrypt.
	credentialInfo = "valet.credential."
)

// VaultConfig supplies the vault's master material.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // stretch into the master key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault seals bridge credentials with AES-256-GCM. The master key never
// encrypts anything directly; each credential is sealed under HKDF(master,
// credentialInfo+name), binding the ciphertext to the name it was stored
// under.
type AESVault struct {
	store  CredentialStore
	master []byte
}

// NewAESVault creates a vault backed by the given credential rows.
func NewAESVault(s CredentialStore, cfg VaultConfig) (*AESVault, error) {
	master, err := masterKey(cfg)
	if err != nil {
		return nil, err
	}
	return &AESVault{store: s, master: master}, nil
}

func masterKey(cfg VaultConfig) ([]byte, error) {
	switch {
	case len(cfg.MasterKey) == keySize:
		return cfg.MasterKey, nil
	case len(cfg.MasterKey) > 0:
		return nil, schema.NewErrorf(schema.ErrCodeVault,
			"master key must be %d bytes, got %d", keySize, len(cfg.MasterKey))
	case cfg.Passphrase == "":
		return nil, schema.NewError(schema.ErrCodeVault, "vault needs a master key or a passphrase")
	case len(cfg.Salt) == 0:
		return nil, schema.NewError(schema.ErrCodeVault, "passphrase derivation needs a salt")
	}
	iter := cfg.Iterations
	if iter <= 0 {
		iter = defaultIterations
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iter, keySize)
}

// sealerFor builds the AEAD for one credential name.
func (v *AESVault) sealerFor(name string) (cipher.AEAD, error) {
	key, err := hkdf.Key(sha256.New, v.master, nil, credentialInfo+name, keySize)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "derive key for credential %q", name).WithCause(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "aes cipher").WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "gcm mode").WithCause(err)
	}
	return aead, nil
}

// Store seals value under the credential's derived key and persists the
// envelope.
func (v *AESVault) Store(ctx context.Context, name string, value []byte) error {
	aead, err := v.sealerFor(name)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return schema.NewError(schema.ErrCodeVault, "nonce generation failed").WithCause(err)
	}

	envelope := make([]byte, 1, 1+len(nonce)+len(value)+aead.Overhead())
	envelope[0] = envelopeV1
	envelope = append(envelope, nonce...)
	envelope = aead.Seal(envelope, nonce, value, nil)

	return v.store.StoreCredential(ctx, name, envelope)
}

// Resolve loads and opens the credential's envelope. A wrong passphrase, a
// tampered row, or a ciphertext moved between credential names all fail the
// same way.
func (v *AESVault) Resolve(ctx context.Context, name string) ([]byte, error) {
	envelope, err := v.store.GetCredential(ctx, name)
	if err != nil {
		return nil, err
	}
	aead, err := v.sealerFor(name)
	if err != nil {
		return nil, err
	}

	if len(envelope) < 1+aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "credential %q envelope is truncated", name)
	}
	if envelope[0] != envelopeV1 {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "credential %q uses unknown envelope version %d", name, envelope[0])
	}

	nonce := envelope[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, envelope[1+aead.NonceSize():], nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "credential %q does not decrypt under this key", name)
	}
	return plain, nil
}

// Delete removes the credential row.
func (v *AESVault) Delete(ctx context.Context, name string) error {
	return v.store.DeleteCredential(ctx, name)
}

// List names the stored credentials. Values stay sealed.
func (v *AESVault) List(ctx context.Context) ([]string, error) {
	return v.store.ListCredentials(ctx)
}
