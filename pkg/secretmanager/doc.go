// Package secretmanager defines the core types shared by the secret
// management subsystem: the encryption-type discriminator, the
// polymorphic secret manager configuration variants, and the
// EncryptedData record that stores every encrypted secret fragment.
//
// # Manager configurations
//
// Each supported backend (local symmetric encryption, HashiCorp Vault,
// AWS KMS, AWS Secrets Manager, GCP KMS, GCP Secret Manager, Azure Key
// Vault, CyberArk, custom) has one Config variant. All variants embed
// ConfigBase for the common attributes and implement the Config
// interface. Dispatch on a manager is always driven by its
// EncryptionType tag.
//
// Credential sub-fields on a Config never hold plaintext at rest: they
// hold the id of an EncryptedData record. Plaintext appears in those
// fields only transiently, between a save/update call and the moment
// the credential is persisted as a record reference, or after an
// explicit decrypt for use.
//
// # Masking
//
// The Mask sentinel signals "credential unchanged, keep the stored
// reference" on update, and replaces credential values on masked reads.
// Backends compare incoming values against Mask before deciding whether
// a credential actually changed.
//
// # Credential field access
//
// CredentialFields returns name/pointer pairs for every credential
// sub-field of a variant, so masking and decryption are plain loops
// over a statically known list. No reflection is involved.
package secretmanager
