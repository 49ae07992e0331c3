package secrets

import "context"

// Vault holds bridge auth material (API tokens, header values) encrypted at
// rest. Values are decrypted in-memory only, at the moment a bridge is wired.
type Vault interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// CredentialStore is the minimal persistence interface needed by the vault.
// Satisfied by store.LibSQLStore.
type CredentialStore interface {
	StoreCredential(ctx context.Context, key string, value []byte) error
	GetCredential(ctx context.Context, key string) ([]byte, error)
	DeleteCredential(ctx context.Context, key string) error
	ListCredentials(ctx context.Context) ([]string, error)
}
