package secretmanager

import (
	"time"
)

// EncryptionType identifies which backend adapter owns a manager
// configuration or encrypted record.
type EncryptionType string

const (
	TypeLocal             EncryptionType = "LOCAL"
	TypeVault             EncryptionType = "VAULT"
	TypeSSHVault          EncryptionType = "SSH_VAULT"
	TypeKMS               EncryptionType = "KMS"
	TypeGCPKMS            EncryptionType = "GCP_KMS"
	TypeGCPSecretsManager EncryptionType = "GCP_SECRETS_MANAGER"
	TypeAWSSecretsManager EncryptionType = "AWS_SECRETS_MANAGER"
	TypeAzureVault        EncryptionType = "AZURE_VAULT"
	TypeCyberArk          EncryptionType = "CYBERARK"
	TypeCustom            EncryptionType = "CUSTOM"
)

// Mask is the sentinel value that stands in for an unchanged credential
// on update and for a hidden credential on masked reads.
const Mask = "*****"

// GlobalAccountID is the pseudo-account that owns cross-account
// managers. Global managers are visible to every account as an implicit
// fallback when no account-level default exists.
const GlobalAccountID = "__GLOBAL_ACCOUNT__"

// SupportsGlobal reports whether managers of this type may be owned by
// the global account.
func (t EncryptionType) SupportsGlobal() bool {
	switch t {
	case TypeGCPKMS, TypeKMS, TypeLocal:
		return true
	}
	return false
}

// CanTransitionFrom reports whether secrets owned by a manager of this
// type may be migrated away from it.
func (t EncryptionType) CanTransitionFrom() bool {
	switch t {
	case TypeCyberArk, TypeCustom:
		return false
	}
	return true
}

// CanTransitionTo reports whether a manager of this type may receive
// migrated secrets.
func (t EncryptionType) CanTransitionTo() bool {
	switch t {
	case TypeCyberArk, TypeCustom:
		return false
	}
	return true
}

// ParentRef records one owner of an encrypted record: the entity whose
// configuration field references the record.
type ParentRef struct {
	OwnerID     string `yaml:"ownerId"`
	OwnerType   string `yaml:"ownerType"`
	FieldName   string `yaml:"fieldName"`
	SettingType string `yaml:"settingType"`
}

// EncryptedData is a stored secret fragment. Its EncryptionType decides
// which adapter decrypts it; KmsID names the owning manager config and
// drives usage counting and the delete-safety guard.
type EncryptedData struct {
	ID             string         `yaml:"id"`
	AccountID      string         `yaml:"accountId"`
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type"`
	EncryptionType EncryptionType `yaml:"encryptionType"`
	// EncryptionKey is an opaque symmetric key reference, populated only
	// when EncryptionType is TypeLocal.
	EncryptionKey  string      `yaml:"encryptionKey,omitempty"`
	EncryptedValue []byte      `yaml:"encryptedValue,omitempty"`
	KmsID          string      `yaml:"kmsId,omitempty"`
	Parents        []ParentRef `yaml:"parents,omitempty"`
	// Path addresses the fragment in path-addressed backends (Vault KV).
	Path string `yaml:"path,omitempty"`
	// UsageScopes restricts which app/env contexts may read the secret;
	// empty means unrestricted.
	UsageScopes []string  `yaml:"usageScopes,omitempty"`
	CreatedAt   time.Time `yaml:"createdAt"`
	UpdatedAt   time.Time `yaml:"updatedAt"`
}

// KindEncryptedData is the document-store kind for EncryptedData.
const KindEncryptedData = "encryptedRecords"

// Kind implements docstore.Doc.
func (d *EncryptedData) Kind() string { return KindEncryptedData }

// GetID implements docstore.Doc.
func (d *EncryptedData) GetID() string { return d.ID }

// SetID implements docstore.Doc.
func (d *EncryptedData) SetID(id string) { d.ID = id }

// Field implements docstore.Filterable for the lookup paths the core
// uses: by id, by {accountId, name}, and by {kmsId, encryptionType}.
func (d *EncryptedData) Field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return d.ID, true
	case "accountId":
		return d.AccountID, true
	case "name":
		return d.Name, true
	case "kmsId":
		return d.KmsID, true
	case "encryptionType":
		return string(d.EncryptionType), true
	}
	return nil, false
}

// AddParent attaches an owner reference, replacing any existing
// reference from the same owner and field.
func (d *EncryptedData) AddParent(p ParentRef) {
	d.RemoveParent(p.OwnerID, p.FieldName)
	d.Parents = append(d.Parents, p)
}

// RemoveParent detaches the owner reference for the given owner/field.
func (d *EncryptedData) RemoveParent(ownerID, fieldName string) {
	kept := d.Parents[:0]
	for _, p := range d.Parents {
		if p.OwnerID != ownerID || p.FieldName != fieldName {
			kept = append(kept, p)
		}
	}
	d.Parents = kept
}

// Clone returns an independent copy of the record.
func (d *EncryptedData) Clone() *EncryptedData {
	out := *d
	out.EncryptedValue = append([]byte(nil), d.EncryptedValue...)
	out.Parents = append([]ParentRef(nil), d.Parents...)
	out.UsageScopes = append([]string(nil), d.UsageScopes...)
	return &out
}
