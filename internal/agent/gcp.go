package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	gcpsm "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/cloudkms/v1"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	smgr "github.com/systmms/secretmgr/pkg/secretmanager"
)

// gcpKMSOp handles Google Cloud KMS operations through the REST API.
// Like AWS KMS, the key is pure crypto with no storage: the created
// secret's "path" is the base64 ciphertext the key produced.
func (a *Agent) gcpKMSOp(ctx context.Context, req delegate.Request, cfg *smgr.GCPKMSConfig) (*delegate.Response, error) {
	svc, err := cloudkms.NewService(ctx, option.WithCredentialsJSON([]byte(cfg.Credentials)))
	if err != nil {
		return nil, err
	}
	keyName := fmt.Sprintf("projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s",
		cfg.ProjectID, cfg.Region, cfg.KeyRing, cfg.KeyName)

	switch req.Operation {
	case delegate.OpValidateConfig:
		_, err := svc.Projects.Locations.KeyRings.CryptoKeys.Get(keyName).Context(ctx).Do()
		return respond(nil), err

	case delegate.OpCreateSecret:
		out, err := svc.Projects.Locations.KeyRings.CryptoKeys.Encrypt(keyName, &cloudkms.EncryptRequest{
			Plaintext: base64.StdEncoding.EncodeToString([]byte(payloadString(req, "value"))),
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"path": out.Ciphertext}), nil

	case delegate.OpFetchSecret:
		out, err := svc.Projects.Locations.KeyRings.CryptoKeys.Decrypt(keyName, &cloudkms.DecryptRequest{
			Ciphertext: payloadString(req, "path"),
		}).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		plaintext, err := base64.StdEncoding.DecodeString(out.Plaintext)
		if err != nil {
			return nil, smerrors.DecryptionError{RecordName: payloadString(req, "name"), Err: err}
		}
		return respond(map[string]interface{}{"value": string(plaintext)}), nil

	case delegate.OpDeleteSecret:
		return respond(nil), nil
	}
	return nil, unsupported(req.Operation, "GCP KMS")
}

func (a *Agent) gcpSecretsManagerOp(ctx context.Context, req delegate.Request, cfg *smgr.GCPSecretsManagerConfig) (*delegate.Response, error) {
	client, err := gcpsm.NewClient(ctx, option.WithCredentialsJSON([]byte(cfg.Credentials)))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	projectID, err := gcpProjectID(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	parent := "projects/" + projectID

	switch req.Operation {
	case delegate.OpValidateConfig:
		it := client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: parent, PageSize: 1})
		if _, err := it.Next(); err != nil && err != iterator.Done {
			return nil, err
		}
		return respond(nil), nil

	case delegate.OpCreateSecret:
		name := payloadString(req, "name")
		_, err := client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   parent,
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return nil, err
		}
		path := parent + "/secrets/" + name
		_, err = client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
			Parent:  path,
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(payloadString(req, "value"))},
		})
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"path": path}), nil

	case delegate.OpFetchSecret:
		path := payloadString(req, "path")
		if path == "" {
			path = parent + "/secrets/" + payloadString(req, "name")
		}
		out, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: path + "/versions/latest",
		})
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"value": string(out.Payload.Data)}), nil

	case delegate.OpDeleteSecret:
		err := client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: payloadString(req, "path")})
		if err != nil && status.Code(err) != codes.NotFound {
			return nil, err
		}
		return respond(nil), nil
	}
	return nil, unsupported(req.Operation, "GCP Secret Manager")
}

func gcpProjectID(credentialsJSON string) (string, error) {
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(credentialsJSON), &key); err != nil || key.ProjectID == "" {
		return "", smerrors.ValidationError{
			Field:   "credentials",
			Message: "credentials do not carry a project_id",
		}
	}
	return key.ProjectID, nil
}
