package security

import (
	"fmt"

	"proxysheet/internal/domain"
)

// CredentialPolicy decides how proxy passwords appear in published rows.
type CredentialPolicy string

const (
	// CredentialPlain publishes passwords as-is so readers of the sink can use the proxies.
	CredentialPlain CredentialPolicy = "plain"
	// CredentialRedact publishes an empty password.
	CredentialRedact CredentialPolicy = "redact"
	// CredentialEncrypt publishes an "enc:" AES-GCM sealed password.
	CredentialEncrypt CredentialPolicy = "encrypt"
)

// ProtectCredentials returns a copy of records with the policy applied.
// The input slice is never modified. pc is only used for CredentialEncrypt.
func ProtectCredentials(policy CredentialPolicy, pc *ProxyCipher, records []domain.ActiveProxyRecord) ([]domain.ActiveProxyRecord, error) {
	protected := make([]domain.ActiveProxyRecord, len(records))
	copy(protected, records)

	switch policy {
	case CredentialPlain, "":
		return protected, nil
	case CredentialRedact:
		for i := range protected {
			protected[i].Password = ""
		}
		return protected, nil
	case CredentialEncrypt:
		if pc == nil {
			return nil, ErrNoEncryptionKey
		}
		for i := range protected {
			sealed, err := pc.Encrypt(protected[i].Password)
			if err != nil {
				return nil, fmt.Errorf("encrypt password for %s:%d: %w", protected[i].Host, protected[i].Port, err)
			}
			protected[i].Password = sealed
		}
		return protected, nil
	default:
		return nil, fmt.Errorf("unknown credential policy %q", policy)
	}
}
