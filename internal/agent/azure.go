package agent

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/secretmgr/internal/delegate"
	smgr "github.com/systmms/secretmgr/pkg/secretmanager"
)

func (a *Agent) azureOp(ctx context.Context, req delegate.Request, cfg *smgr.AzureVaultConfig) (*delegate.Response, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.SecretKey, nil)
	if err != nil {
		return nil, err
	}
	client, err := azsecrets.NewClient(cfg.VaultURL(), cred, nil)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case delegate.OpValidateConfig:
		pager := client.NewListSecretPropertiesPager(nil)
		if _, err := pager.NextPage(ctx); err != nil {
			return nil, err
		}
		return respond(nil), nil

	case delegate.OpCreateSecret:
		name := payloadString(req, "name")
		_, err := client.SetSecret(ctx, name, azsecrets.SetSecretParameters{
			Value: to.Ptr(payloadString(req, "value")),
		}, nil)
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"path": name}), nil

	case delegate.OpFetchSecret:
		name := payloadString(req, "path")
		if name == "" {
			name = payloadString(req, "name")
		}
		out, err := client.GetSecret(ctx, name, "", nil)
		if err != nil {
			return nil, err
		}
		var value string
		if out.Value != nil {
			value = *out.Value
		}
		return respond(map[string]interface{}{"value": value}), nil

	case delegate.OpDeleteSecret:
		if _, err := client.DeleteSecret(ctx, payloadString(req, "path"), nil); err != nil {
			return nil, err
		}
		return respond(nil), nil
	}
	return nil, unsupported(req.Operation, "Azure Key Vault")
}
