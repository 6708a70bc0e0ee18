// Package validation holds the per-backend input rules as explicit
// allow-list tables: the name character class shared by every manager,
// each backend's required fields, and the GCP credential JSON schema.
package validation

import (
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	smerrors "github.com/systmms/secretmgr/internal/errors"
	"github.com/systmms/secretmgr/pkg/secretmanager"
)

// managerNameRe is the character class every manager name must match.
var managerNameRe = regexp.MustCompile(`^[0-9a-zA-Z][0-9a-zA-Z _\-]*$`)

// awsRegionRe matches AWS region identifiers like us-east-1.
var awsRegionRe = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

// gcpResourceRe matches GCP project/keyring/key identifiers.
var gcpResourceRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// ManagerName validates the common name rule.
func ManagerName(name string) error {
	if name == "" {
		return smerrors.ValidationError{Field: "name", Message: "name cannot be empty"}
	}
	if !managerNameRe.MatchString(name) {
		return smerrors.ValidationError{
			Field:      "name",
			Message:    "name contains invalid characters",
			Suggestion: "use letters, digits, spaces, hyphens and underscores, starting with a letter or digit",
		}
	}
	return nil
}

// SecretName validates a secret record name; the character class is
// shared with manager names.
func SecretName(name string) error {
	if name == "" {
		return smerrors.ValidationError{Field: "name", Message: "secret name cannot be empty"}
	}
	if !managerNameRe.MatchString(name) {
		return smerrors.ValidationError{
			Field:      "name",
			Message:    "secret name contains invalid characters",
			Suggestion: "use letters, digits, spaces, hyphens and underscores, starting with a letter or digit",
		}
	}
	return nil
}

// Required rejects an empty mandatory field.
func Required(field, value string) error {
	if value == "" {
		return smerrors.ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}

// AWSRegion validates a region identifier.
func AWSRegion(value string) error {
	if err := Required("region", value); err != nil {
		return err
	}
	if !awsRegionRe.MatchString(value) {
		return smerrors.ValidationError{
			Field:      "region",
			Message:    "'" + value + "' is not a valid region",
			Suggestion: "use a region identifier like us-east-1",
		}
	}
	return nil
}

// GCPResource validates a project, keyring or key identifier.
func GCPResource(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if !gcpResourceRe.MatchString(value) {
		return smerrors.ValidationError{Field: field, Message: field + " contains invalid characters"}
	}
	return nil
}

// gcpCredentialSchema is the shape of a service account key file.
const gcpCredentialSchema = `{
	"type": "object",
	"required": ["type", "project_id", "private_key", "client_email"],
	"properties": {
		"type":         {"type": "string"},
		"project_id":   {"type": "string", "minLength": 1},
		"private_key":  {"type": "string", "minLength": 1},
		"client_email": {"type": "string", "minLength": 1}
	}
}`

var gcpSchema = gojsonschema.NewStringLoader(gcpCredentialSchema)

// GCPCredentials validates that a credential payload is a well-formed
// service account key. The Mask sentinel passes: it stands for an
// already-validated stored credential.
func GCPCredentials(value string) error {
	if value == secretmanager.Mask {
		return nil
	}
	if err := Required("credentials", value); err != nil {
		return err
	}
	result, err := gojsonschema.Validate(gcpSchema, gojsonschema.NewStringLoader(value))
	if err != nil {
		return smerrors.ValidationError{
			Field:      "credentials",
			Message:    "credentials are not valid JSON",
			Suggestion: "paste the full service account key file contents",
		}
	}
	if !result.Valid() {
		return smerrors.ValidationError{
			Field:      "credentials",
			Message:    "credentials are not a valid service account key",
			Suggestion: "the key file must include type, project_id, private_key and client_email",
		}
	}
	return nil
}

// TemplatizedFields checks that every templatized field carries a
// non-empty, non-masked runtime value before create/update.
func TemplatizedFields(cfg secretmanager.Config) error {
	if !cfg.IsTemplatized() {
		return nil
	}
	byName := make(map[string]*string)
	for _, f := range cfg.CredentialFields() {
		byName[f.Name] = f.Ref
	}
	for _, field := range cfg.TemplatizedFields() {
		ref, ok := byName[field]
		if !ok || *ref == "" || *ref == secretmanager.Mask {
			return smerrors.ValidationError{
				Field:   field,
				Message: "templatized field must have a runtime value",
			}
		}
	}
	return nil
}
