// Package credentials loads the Google service account that issues custom
// tokens and scopes verification to a Firebase project.
//
// A service account can be built directly with [New], parsed from the JSON
// key file with [Parse], or loaded with [FromEnvironment], which reads the
// variable named by GOOGLE_APPLICATION_CREDENTIALS by default. That variable
// may contain either the path to a key file or the JSON document itself.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// DefaultEnvVar is the variable FromEnvironment reads when no name is given.
const DefaultEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

// Variables exposes the service account values the builder and verifiers
// need. It is satisfied by *ServiceAccount.
type Variables interface {
	ProjectID() string
	ClientEmail() string
	PrivateKey() Secret
}

// ServiceAccount is an immutable set of service account credentials.
type ServiceAccount struct {
	projectID   string
	clientEmail string
	privateKey  Secret
}

var _ Variables = (*ServiceAccount)(nil)

// New returns a ServiceAccount after checking no value is empty. The key is
// not parsed here; a malformed key surfaces when a token is signed.
func New(projectID, clientEmail string, privateKey Secret) (*ServiceAccount, error) {
	switch {
	case projectID == "":
		return nil, sserr.New(sserr.CodeValidationRequired, "credentials: project_id is missing")
	case clientEmail == "":
		return nil, sserr.New(sserr.CodeValidationRequired, "credentials: client_email is missing")
	case privateKey == "":
		return nil, sserr.New(sserr.CodeValidationRequired, "credentials: private_key is missing")
	}
	return &ServiceAccount{
		projectID:   projectID,
		clientEmail: clientEmail,
		privateKey:  privateKey,
	}, nil
}

// ProjectID returns the Firebase project id.
func (s *ServiceAccount) ProjectID() string { return s.projectID }

// ClientEmail returns the service account email, used as iss and sub of
// custom tokens.
func (s *ServiceAccount) ClientEmail() string { return s.clientEmail }

// PrivateKey returns the PEM encoded RSA private key.
func (s *ServiceAccount) PrivateKey() Secret { return s.privateKey }

// String omits the private key.
func (s *ServiceAccount) String() string {
	return fmt.Sprintf("ServiceAccount{project_id: %s, client_email: %s}", s.projectID, s.clientEmail)
}

// serviceAccountType is the "type" of a Google service account JSON key.
const serviceAccountType = "service_account"

// keyFile mirrors the fields of a Google service account JSON key that
// this module uses. Everything else in the file is ignored.
type keyFile struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Parse decodes a service account JSON key. A "type" other than
// "service_account" (for example an authorized_user file) is rejected; a
// missing type is accepted.
func Parse(data []byte) (*ServiceAccount, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"credentials: service account JSON could not be parsed")
	}
	if kf.Type != "" && kf.Type != serviceAccountType {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"credentials: expected a %s key, got type %q", serviceAccountType, kf.Type)
	}
	return New(kf.ProjectID, kf.ClientEmail, Secret(kf.PrivateKey))
}

// FromFile reads and parses a service account key file.
func FromFile(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"credentials: failed to read service account file %q", path)
	}
	return Parse(data)
}

// FromEnvironment loads credentials from the environment variable name,
// or DefaultEnvVar when name is empty. A value starting with "{" is parsed
// as inline JSON; any other value is treated as a file path.
func FromEnvironment(name string) (*ServiceAccount, error) {
	if name == "" {
		name = DefaultEnvVar
	}
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"credentials: environment variable %s is not set", name)
	}
	if strings.HasPrefix(value, "{") {
		return Parse([]byte(value))
	}
	return FromFile(value)
}
