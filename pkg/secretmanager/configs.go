package secretmanager

// KindSecretManagerConfig is the document-store kind shared by all
// manager config variants.
const KindSecretManagerConfig = "secretManagers"

// CredentialField pairs a credential sub-field's name with a pointer to
// its value on the owning config. At rest the value is an EncryptedData
// record id; transiently it may hold plaintext (during save) or the
// Mask sentinel (on masked reads and no-change updates).
type CredentialField struct {
	Name string
	Ref  *string
}

// NGMetadata scopes a manager to an org/project identifier instead of
// legacy account-only scoping. NG-scoped managers are excluded from
// default-flag accounting and normal listings.
type NGMetadata struct {
	OrgID      string `yaml:"orgId,omitempty"`
	ProjectID  string `yaml:"projectId,omitempty"`
	Identifier string `yaml:"identifier"`
}

// Config is the interface implemented by every secret manager
// configuration variant.
type Config interface {
	GetID() string
	SetID(id string)
	GetAccountID() string
	GetName() string
	SetName(name string)
	EncryptionType() EncryptionType

	IsDefault() bool
	SetDefault(v bool)

	// IsGlobal reports whether the manager is owned by the global
	// pseudo-account and therefore visible to every account.
	IsGlobal() bool

	// NG returns the next-gen scope metadata, or nil for a legacy
	// account-scoped manager.
	NG() *NGMetadata

	// UsageScopeList returns the app/env scopes the manager is
	// restricted to; empty means unrestricted.
	UsageScopeList() []string

	// IsTemplatized reports whether any field value is supplied at
	// runtime rather than stored. A templatized manager can never be
	// the default manager.
	IsTemplatized() bool
	TemplatizedFields() []string

	// CredentialFields returns the variant's credential sub-fields in a
	// stable order. Masking and decryption iterate this list.
	CredentialFields() []CredentialField

	// SetNumSecrets annotates the derived secret count on listings.
	SetNumSecrets(n int)

	// Clone returns an independent deep copy, used for audit snapshots
	// of the pre-update state.
	Clone() Config

	// Kind, GetID, SetID and Field satisfy the document store contract.
	Kind() string
	Field(name string) (interface{}, bool)
}

// ConfigBase holds the attributes common to every variant.
type ConfigBase struct {
	ID                string      `yaml:"id"`
	AccountID         string      `yaml:"accountId"`
	Name              string      `yaml:"name"`
	Default           bool        `yaml:"isDefault"`
	ScopedToAccount   bool        `yaml:"scopedToAccount"`
	UsageScopes       []string    `yaml:"usageScopes,omitempty"`
	DelegateSelectors []string    `yaml:"delegateSelectors,omitempty"`
	NGMetadata        *NGMetadata `yaml:"ngMetadata,omitempty"`
	TemplatizedList   []string    `yaml:"templatizedFields,omitempty"`

	// NumSecrets is a derived count of encrypted records owned by this
	// manager, annotated on listings. Not persisted authoritatively.
	NumSecrets int `yaml:"-"`
}

func (b *ConfigBase) GetID() string               { return b.ID }
func (b *ConfigBase) SetID(id string)             { b.ID = id }
func (b *ConfigBase) GetAccountID() string        { return b.AccountID }
func (b *ConfigBase) SetAccountID(id string)      { b.AccountID = id }
func (b *ConfigBase) GetName() string             { return b.Name }
func (b *ConfigBase) SetName(name string)         { b.Name = name }
func (b *ConfigBase) IsDefault() bool             { return b.Default }
func (b *ConfigBase) SetDefault(v bool)           { b.Default = v }
func (b *ConfigBase) IsGlobal() bool              { return b.AccountID == GlobalAccountID }
func (b *ConfigBase) NG() *NGMetadata             { return b.NGMetadata }
func (b *ConfigBase) UsageScopeList() []string    { return b.UsageScopes }
func (b *ConfigBase) IsTemplatized() bool         { return len(b.TemplatizedList) > 0 }
func (b *ConfigBase) TemplatizedFields() []string { return b.TemplatizedList }
func (b *ConfigBase) SetNumSecrets(n int)         { b.NumSecrets = n }
func (b *ConfigBase) GetNumSecrets() int          { return b.NumSecrets }
func (b *ConfigBase) Kind() string                { return KindSecretManagerConfig }

// Field exposes the attributes the registry filters on.
func (b *ConfigBase) Field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return b.ID, true
	case "accountId":
		return b.AccountID, true
	case "name":
		return b.Name, true
	case "isDefault":
		return b.Default, true
	case "ng":
		return b.NGMetadata != nil, true
	}
	return nil, false
}

// SetField supports the document store's partial-update path for the
// mutable common attributes.
func (b *ConfigBase) SetField(name string, value interface{}) bool {
	switch name {
	case "name":
		if s, ok := value.(string); ok {
			b.Name = s
			return true
		}
	case "isDefault":
		if v, ok := value.(bool); ok {
			b.Default = v
			return true
		}
	}
	return false
}

func (b *ConfigBase) clone() ConfigBase {
	out := *b
	out.UsageScopes = append([]string(nil), b.UsageScopes...)
	out.DelegateSelectors = append([]string(nil), b.DelegateSelectors...)
	out.TemplatizedList = append([]string(nil), b.TemplatizedList...)
	if b.NGMetadata != nil {
		ng := *b.NGMetadata
		out.NGMetadata = &ng
	}
	return out
}

// LocalConfig is the implicit symmetric-encryption manager. Every
// account has one with ID equal to the account id; it is never
// deletable and hidden from normal listings.
type LocalConfig struct {
	ConfigBase `yaml:",inline"`
}

func (c *LocalConfig) EncryptionType() EncryptionType      { return TypeLocal }
func (c *LocalConfig) CredentialFields() []CredentialField { return nil }
func (c *LocalConfig) Clone() Config {
	return &LocalConfig{ConfigBase: c.ConfigBase.clone()}
}

// NewLocalConfig builds the implicit local manager for an account.
func NewLocalConfig(accountID string) *LocalConfig {
	return &LocalConfig{ConfigBase: ConfigBase{
		ID:              accountID,
		AccountID:       accountID,
		Name:            "Local Encryption",
		ScopedToAccount: true,
	}}
}

// VaultConfig configures a HashiCorp Vault KV backend, authenticated by
// a static token or by AppRole login.
type VaultConfig struct {
	ConfigBase `yaml:",inline"`

	URL                 string `yaml:"url"`
	AuthToken           string `yaml:"authToken,omitempty"`
	AppRoleID           string `yaml:"appRoleId,omitempty"`
	SecretID            string `yaml:"secretId,omitempty"`
	BasePath            string `yaml:"basePath,omitempty"`
	SecretEngineName    string `yaml:"secretEngineName"`
	SecretEngineVersion int    `yaml:"secretEngineVersion"`
	Namespace           string `yaml:"namespace,omitempty"`
	RenewalInterval     int64  `yaml:"renewalIntervalMinutes"`
	ReadOnly            bool   `yaml:"isReadOnly"`
	UseVaultAgent       bool   `yaml:"useVaultAgent,omitempty"`
}

func (c *VaultConfig) EncryptionType() EncryptionType { return TypeVault }

func (c *VaultConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "authToken", Ref: &c.AuthToken},
		{Name: "secretId", Ref: &c.SecretID},
	}
}

func (c *VaultConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// UsesAppRole reports whether the config authenticates by AppRole
// rather than a static token.
func (c *VaultConfig) UsesAppRole() bool { return c.AppRoleID != "" }

// SSHVaultConfig configures Vault's SSH secret engine for signed SSH
// certificates.
type SSHVaultConfig struct {
	ConfigBase `yaml:",inline"`

	URL       string `yaml:"url"`
	AuthToken string `yaml:"authToken,omitempty"`
	AppRoleID string `yaml:"appRoleId,omitempty"`
	SecretID  string `yaml:"secretId,omitempty"`
	SSHRole   string `yaml:"sshRole"`
	Namespace string `yaml:"namespace,omitempty"`
}

func (c *SSHVaultConfig) EncryptionType() EncryptionType { return TypeSSHVault }

func (c *SSHVaultConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "authToken", Ref: &c.AuthToken},
		{Name: "secretId", Ref: &c.SecretID},
	}
}

func (c *SSHVaultConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

func (c *SSHVaultConfig) UsesAppRole() bool { return c.AppRoleID != "" }

// KMSConfig configures AWS KMS envelope encryption.
type KMSConfig struct {
	ConfigBase `yaml:",inline"`

	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	KmsArn    string `yaml:"kmsArn"`
	Region    string `yaml:"region"`
}

func (c *KMSConfig) EncryptionType() EncryptionType { return TypeKMS }

func (c *KMSConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "accessKey", Ref: &c.AccessKey},
		{Name: "secretKey", Ref: &c.SecretKey},
		{Name: "kmsArn", Ref: &c.KmsArn},
	}
}

func (c *KMSConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// GCPKMSConfig configures Google Cloud KMS.
type GCPKMSConfig struct {
	ConfigBase `yaml:",inline"`

	ProjectID   string `yaml:"projectId"`
	Region      string `yaml:"region"`
	KeyRing     string `yaml:"keyRing"`
	KeyName     string `yaml:"keyName"`
	Credentials string `yaml:"credentials"`
}

func (c *GCPKMSConfig) EncryptionType() EncryptionType { return TypeGCPKMS }

func (c *GCPKMSConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "credentials", Ref: &c.Credentials},
	}
}

func (c *GCPKMSConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// GCPSecretsManagerConfig configures Google Cloud Secret Manager.
type GCPSecretsManagerConfig struct {
	ConfigBase `yaml:",inline"`

	Credentials string `yaml:"credentials"`
}

func (c *GCPSecretsManagerConfig) EncryptionType() EncryptionType { return TypeGCPSecretsManager }

func (c *GCPSecretsManagerConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "credentials", Ref: &c.Credentials},
	}
}

func (c *GCPSecretsManagerConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// AWSSecretsManagerConfig configures AWS Secrets Manager.
type AWSSecretsManagerConfig struct {
	ConfigBase `yaml:",inline"`

	AccessKey        string `yaml:"accessKey"`
	SecretKey        string `yaml:"secretKey"`
	Region           string `yaml:"region"`
	SecretNamePrefix string `yaml:"secretNamePrefix,omitempty"`
	AssumeIAMRole    bool   `yaml:"assumeIamRole,omitempty"`
	RoleARN          string `yaml:"roleArn,omitempty"`
	ExternalID       string `yaml:"externalId,omitempty"`
}

func (c *AWSSecretsManagerConfig) EncryptionType() EncryptionType { return TypeAWSSecretsManager }

func (c *AWSSecretsManagerConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "accessKey", Ref: &c.AccessKey},
		{Name: "secretKey", Ref: &c.SecretKey},
	}
}

func (c *AWSSecretsManagerConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// AzureVaultConfig configures Azure Key Vault.
type AzureVaultConfig struct {
	ConfigBase `yaml:",inline"`

	ClientID       string `yaml:"clientId"`
	TenantID       string `yaml:"tenantId"`
	SecretKey      string `yaml:"secretKey"`
	SubscriptionID string `yaml:"subscriptionId"`
	VaultName      string `yaml:"vaultName"`
}

func (c *AzureVaultConfig) EncryptionType() EncryptionType { return TypeAzureVault }

func (c *AzureVaultConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "secretKey", Ref: &c.SecretKey},
	}
}

func (c *AzureVaultConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// VaultURL returns the key vault endpoint for the configured vault name.
func (c *AzureVaultConfig) VaultURL() string {
	return "https://" + c.VaultName + ".vault.azure.net"
}

// CyberArkConfig configures CyberArk's central credential provider.
type CyberArkConfig struct {
	ConfigBase `yaml:",inline"`

	AppID             string `yaml:"appId"`
	URL               string `yaml:"url"`
	ClientCertificate string `yaml:"clientCertificate,omitempty"`
}

func (c *CyberArkConfig) EncryptionType() EncryptionType { return TypeCyberArk }

func (c *CyberArkConfig) CredentialFields() []CredentialField {
	return []CredentialField{
		{Name: "clientCertificate", Ref: &c.ClientCertificate},
	}
}

func (c *CyberArkConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	return &out
}

// NameValue is one parameter of a custom manager template.
type NameValue struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Secret bool   `yaml:"secret,omitempty"`
}

// CustomConfig configures a shell-template-driven custom backend. Any
// parameter flagged Secret is treated as a credential sub-field.
type CustomConfig struct {
	ConfigBase `yaml:",inline"`

	TemplateID string      `yaml:"templateId"`
	Params     []NameValue `yaml:"params,omitempty"`
}

func (c *CustomConfig) EncryptionType() EncryptionType { return TypeCustom }

func (c *CustomConfig) CredentialFields() []CredentialField {
	var fields []CredentialField
	for i := range c.Params {
		if c.Params[i].Secret {
			fields = append(fields, CredentialField{Name: c.Params[i].Name, Ref: &c.Params[i].Value})
		}
	}
	return fields
}

func (c *CustomConfig) Clone() Config {
	out := *c
	out.ConfigBase = c.ConfigBase.clone()
	out.Params = append([]NameValue(nil), c.Params...)
	return &out
}
