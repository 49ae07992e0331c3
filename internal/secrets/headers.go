package secrets

import (
	"context"
	"strings"

	"github.com/valetiq/valet/pkg/schema"
)

// RefPrefix marks a bridge header value as a vault reference. A bridge
// configured as VALET_BRIDGE_EMAIL=https://... pairs with headers like
// "Authorization: vault:email-api-token"; the token itself never appears in
// the environment.
const RefPrefix = "vault:"

// ResolveHeaders replaces vault references in bridge header values with the
// decrypted credential. Literal values pass through untouched. A reference
// without a configured vault is a wiring error, not a skippable one.
func ResolveHeaders(ctx context.Context, v Vault, headers map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(headers))
	for name, value := range headers {
		ref, ok := strings.CutPrefix(value, RefPrefix)
		if !ok {
			resolved[name] = value
			continue
		}
		if v == nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"header %s references credential %q but no vault is configured", name, ref)
		}
		plain, err := v.Resolve(ctx, ref)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"resolve credential %q for header %s", ref, name).WithCause(err)
		}
		resolved[name] = string(plain)
	}
	return resolved, nil
}
