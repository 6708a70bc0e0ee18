package agent

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/systmms/secretmgr/internal/delegate"
	smerrors "github.com/systmms/secretmgr/internal/errors"
	smgr "github.com/systmms/secretmgr/pkg/secretmanager"
)

// kmsOp handles AWS KMS operations. KMS is not addressable storage, so
// a created secret's "path" is the base64 ciphertext itself; fetching
// decrypts it back through the key.
func (a *Agent) kmsOp(ctx context.Context, req delegate.Request, cfg *smgr.KMSConfig) (*delegate.Response, error) {
	awsCfg, err := staticAWSConfig(ctx, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	client := kms.NewFromConfig(awsCfg)

	switch req.Operation {
	case delegate.OpValidateConfig:
		_, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(cfg.KmsArn)})
		return respond(nil), err

	case delegate.OpCreateSecret:
		out, err := client.Encrypt(ctx, &kms.EncryptInput{
			KeyId:     aws.String(cfg.KmsArn),
			Plaintext: []byte(payloadString(req, "value")),
		})
		if err != nil {
			return nil, err
		}
		ref := base64.StdEncoding.EncodeToString(out.CiphertextBlob)
		return respond(map[string]interface{}{"path": ref}), nil

	case delegate.OpFetchSecret:
		blob, err := base64.StdEncoding.DecodeString(payloadString(req, "path"))
		if err != nil {
			return nil, smerrors.DecryptionError{RecordName: payloadString(req, "name"), Err: err}
		}
		out, err := client.Decrypt(ctx, &kms.DecryptInput{
			KeyId:          aws.String(cfg.KmsArn),
			CiphertextBlob: blob,
		})
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"value": string(out.Plaintext)}), nil

	case delegate.OpDeleteSecret:
		// Nothing lives in KMS; the ciphertext reference dies with the
		// record.
		return respond(nil), nil
	}
	return nil, unsupported(req.Operation, "KMS")
}

func (a *Agent) awsSecretsManagerOp(ctx context.Context, req delegate.Request, cfg *smgr.AWSSecretsManagerConfig) (*delegate.Response, error) {
	awsCfg, err := a.awsSecretsManagerConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := secretsmanager.NewFromConfig(awsCfg)

	switch req.Operation {
	case delegate.OpValidateConfig:
		_, err := client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
		return respond(nil), err

	case delegate.OpCreateSecret:
		name := cfg.SecretNamePrefix + payloadString(req, "name")
		value := payloadString(req, "value")
		_, err := client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
		})
		var exists *smtypes.ResourceExistsException
		if errors.As(err, &exists) {
			_, err = client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
				SecretId:     aws.String(name),
				SecretString: aws.String(value),
			})
		}
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"path": name}), nil

	case delegate.OpFetchSecret:
		name := payloadString(req, "path")
		if name == "" {
			name = cfg.SecretNamePrefix + payloadString(req, "name")
		}
		out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		})
		if err != nil {
			return nil, err
		}
		return respond(map[string]interface{}{"value": aws.ToString(out.SecretString)}), nil

	case delegate.OpDeleteSecret:
		_, err := client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
			SecretId:                   aws.String(payloadString(req, "path")),
			ForceDeleteWithoutRecovery: aws.Bool(true),
		})
		if err != nil {
			return nil, err
		}
		return respond(nil), nil
	}
	return nil, unsupported(req.Operation, "AWS Secrets Manager")
}

func (a *Agent) awsSecretsManagerConfig(ctx context.Context, cfg *smgr.AWSSecretsManagerConfig) (aws.Config, error) {
	if !cfg.AssumeIAMRole {
		return staticAWSConfig(ctx, cfg.Region, cfg.AccessKey, cfg.SecretKey)
	}
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, err
	}
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), cfg.RoleARN,
		func(o *stscreds.AssumeRoleOptions) {
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
		})
	base.Credentials = aws.NewCredentialsCache(provider)
	return base, nil
}

func staticAWSConfig(ctx context.Context, region, accessKey, secretKey string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
}
