package agent

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/hashicorp/vault/api/auth/approle"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/internal/logging"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

const defaultBasePath = "secretmgr"

func (a *Agent) vaultOp(ctx context.Context, req delegate.Request, cfg *secretmanager.VaultConfig) (*delegate.Response, error) {
	client, err := a.vaultClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case delegate.OpAppRoleLogin:
		token, err := appRoleLogin(ctx, client, cfg.AppRoleID, cfg.SecretID)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("AppRole login for %s returned token %s", cfg.GetName(), logging.Secret(token))
		return respond(map[string]interface{}{"token": token}), nil

	case delegate.OpRenewToken:
		increment := int(cfg.RenewalInterval * 60)
		if _, err := client.Auth().Token().RenewSelfWithContext(ctx, increment); err != nil {
			return nil, err
		}
		return respond(nil), nil

	case delegate.OpListSecretEngines:
		engines, err := listSecretEngines(ctx, client)
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"engines": engines}), nil

	case delegate.OpValidateConfig:
		return respond(nil), validateVaultEngine(ctx, client, cfg.SecretEngineName)

	case delegate.OpCreateSecret:
		name := payloadString(req, "name")
		path := joinPath(basePathOf(cfg.BasePath), name)
		data := map[string]interface{}{"value": payloadString(req, "value")}
		if cfg.SecretEngineVersion == 2 {
			_, err = client.KVv2(cfg.SecretEngineName).Put(ctx, path, data)
		} else {
			err = client.KVv1(cfg.SecretEngineName).Put(ctx, path, data)
		}
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"path": path}), nil

	case delegate.OpFetchSecret:
		path := payloadString(req, "path")
		if path == "" {
			path = joinPath(basePathOf(cfg.BasePath), payloadString(req, "name"))
		}
		var kv *api.KVSecret
		if cfg.SecretEngineVersion == 2 {
			kv, err = client.KVv2(cfg.SecretEngineName).Get(ctx, path)
		} else {
			kv, err = client.KVv1(cfg.SecretEngineName).Get(ctx, path)
		}
		if err != nil {
			return nil, err
		}
		value, _ := kv.Data["value"].(string)
		return respond(map[string]interface{}{"value": value}), nil

	case delegate.OpDeleteSecret:
		path := payloadString(req, "path")
		if cfg.ReadOnly {
			return nil, unsupported(req.Operation, "read-only vault")
		}
		if cfg.SecretEngineVersion == 2 {
			err = client.KVv2(cfg.SecretEngineName).Delete(ctx, path)
		} else {
			err = client.KVv1(cfg.SecretEngineName).Delete(ctx, path)
		}
		if err != nil {
			return nil, err
		}
		return respond(nil), nil

	case delegate.OpGetChangeLogs:
		if cfg.SecretEngineVersion != 2 {
			// KV v1 keeps no version history.
			return respond(map[string]interface{}{"changeLogs": []map[string]interface{}{}}), nil
		}
		versions, err := client.KVv2(cfg.SecretEngineName).GetVersionsAsList(ctx, payloadString(req, "path"))
		if err != nil {
			return nil, err
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
		logs := make([]map[string]interface{}, 0, len(versions))
		for _, v := range versions {
			logs = append(logs, map[string]interface{}{
				"description": "version " + strconv.Itoa(v.Version),
				"createdAt":   v.CreatedTime,
			})
		}
		return respond(map[string]interface{}{"changeLogs": logs}), nil
	}
	return nil, unsupported(req.Operation, "vault")
}

func (a *Agent) sshVaultOp(ctx context.Context, req delegate.Request, cfg *secretmanager.SSHVaultConfig) (*delegate.Response, error) {
	client, err := a.sshVaultClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case delegate.OpValidateConfig:
		// Health is enough: the SSH engine rejects bad roles at signing
		// time with a clearer error than any probe here could produce.
		if _, err := client.Sys().HealthWithContext(ctx); err != nil {
			return nil, err
		}
		return respond(nil), nil

	case delegate.OpSignPublicKey:
		secret, err := client.SSH().SignKeyWithContext(ctx, cfg.SSHRole, map[string]interface{}{
			"public_key": payloadString(req, "publicKey"),
		})
		if err != nil {
			return nil, err
		}
		signed, _ := secret.Data["signed_key"].(string)
		return respond(map[string]interface{}{"signedKey": signed}), nil
	}
	return nil, unsupported(req.Operation, "ssh vault")
}

func (a *Agent) vaultClient(ctx context.Context, cfg *secretmanager.VaultConfig) (*api.Client, error) {
	client, err := newVaultClient(cfg.URL, cfg.Namespace)
	if err != nil {
		return nil, err
	}
	if cfg.AuthToken != "" && cfg.AuthToken != secretmanager.Mask {
		client.SetToken(cfg.AuthToken)
		return client, nil
	}
	if cfg.UsesAppRole() {
		token, err := appRoleLogin(ctx, client, cfg.AppRoleID, cfg.SecretID)
		if err != nil {
			return nil, err
		}
		client.SetToken(token)
	}
	return client, nil
}

func (a *Agent) sshVaultClient(ctx context.Context, cfg *secretmanager.SSHVaultConfig) (*api.Client, error) {
	client, err := newVaultClient(cfg.URL, cfg.Namespace)
	if err != nil {
		return nil, err
	}
	if cfg.AuthToken != "" && cfg.AuthToken != secretmanager.Mask {
		client.SetToken(cfg.AuthToken)
		return client, nil
	}
	if cfg.UsesAppRole() {
		token, err := appRoleLogin(ctx, client, cfg.AppRoleID, cfg.SecretID)
		if err != nil {
			return nil, err
		}
		client.SetToken(token)
	}
	return client, nil
}

func newVaultClient(addr, namespace string) (*api.Client, error) {
	conf := api.DefaultConfig()
	conf.Address = addr
	client, err := api.NewClient(conf)
	if err != nil {
		return nil, err
	}
	if namespace != "" {
		client.SetNamespace(namespace)
	}
	return client, nil
}

func appRoleLogin(ctx context.Context, client *api.Client, roleID, secretID string) (string, error) {
	auth, err := approle.NewAppRoleAuth(roleID, &approle.SecretID{FromString: secretID})
	if err != nil {
		return "", err
	}
	info, err := client.Auth().Login(ctx, auth)
	if err != nil {
		return "", err
	}
	if info == nil || info.Auth == nil || info.Auth.ClientToken == "" {
		return "", smerrors.SecretManagementError{
			Message:    "AppRole login returned no client token",
			Suggestion: "check the AppRole role id and secret id",
		}
	}
	return info.Auth.ClientToken, nil
}

func listSecretEngines(ctx context.Context, client *api.Client) ([]map[string]interface{}, error) {
	mounts, err := client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	engines := make([]map[string]interface{}, 0, len(mounts))
	for mount, out := range mounts {
		version := 1
		if v, ok := out.Options["version"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				version = n
			}
		}
		engines = append(engines, map[string]interface{}{
			"name":    strings.TrimSuffix(mount, "/"),
			"type":    out.Type,
			"version": version,
		})
	}
	sort.Slice(engines, func(i, j int) bool {
		return engines[i]["name"].(string) < engines[j]["name"].(string)
	})
	return engines, nil
}

func validateVaultEngine(ctx context.Context, client *api.Client, engine string) error {
	mounts, err := client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return err
	}
	for mount := range mounts {
		if strings.TrimSuffix(mount, "/") == engine {
			return nil
		}
	}
	return smerrors.SecretManagementError{
		Message:    "secret engine '" + engine + "' is not mounted",
		Suggestion: "check the engine name or mount it first",
	}
}

func basePathOf(basePath string) string {
	if basePath == "" {
		return defaultBasePath
	}
	return strings.Trim(basePath, "/")
}

func joinPath(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
