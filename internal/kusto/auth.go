package kusto

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Authentication modes accepted by NewCredential.
const (
	AuthManagedIdentity = "managed-identity"
	AuthDefault         = "default"
)

// NewCredential returns the token credential for mode. clientID selects a
// user-assigned managed identity; empty means the system-assigned one.
func NewCredential(mode, clientID string) (azcore.TokenCredential, error) {
	switch mode {
	case AuthManagedIdentity, "":
		opts := &azidentity.ManagedIdentityCredentialOptions{}
		if clientID != "" {
			opts.ID = azidentity.ClientID(clientID)
		}
		return azidentity.NewManagedIdentityCredential(opts)
	case AuthDefault:
		return azidentity.NewDefaultAzureCredential(nil)
	default:
		return nil, fmt.Errorf("unknown kusto auth mode %q", mode)
	}
}
