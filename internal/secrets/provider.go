// Package secrets resolves the FTP login used by the fetch stage.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Credentials is the FTP login. String never prints the password.
type Credentials struct {
	Host     string
	Username string
	Password string
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Host)
}

// Provider returns FTP credentials for a secret identifier.
type Provider interface {
	GetCredentials(ctx context.Context, secretID string) (Credentials, error)
}

// Reason classifies why a secret could not be read.
type Reason string

const (
	ReasonDecryptionFailure Reason = "DecryptionFailure"
	ReasonInternalError     Reason = "InternalError"
	ReasonInvalidParameter  Reason = "InvalidParameter"
	ReasonInvalidRequest    Reason = "InvalidRequest"
	ReasonNotFound          Reason = "NotFound"
	ReasonAccessDenied      Reason = "AccessDenied"
	ReasonMalformed         Reason = "Malformed"
	ReasonUnknown           Reason = "Unknown"
)

// AccessError is returned for every failure to obtain credentials. The run
// treats it as fatal before any network I/O to the FTP site.
type AccessError struct {
	SecretID string
	Reason   Reason
	Err      error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("secret %q: %s: %v", e.SecretID, e.Reason, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// secretPayload is the JSON document stored in the secret.
type secretPayload struct {
	Address  string `json:"ftp_address"`
	User     string `json:"ftp_id"`
	Password string `json:"ftp_pw"`
}

func parseCredentials(secretID string, raw []byte) (Credentials, error) {
	var p secretPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Credentials{}, &AccessError{SecretID: secretID, Reason: ReasonMalformed, Err: fmt.Errorf("decode secret json: %w", err)}
	}

	var missing []string
	if p.Address == "" {
		missing = append(missing, "ftp_address")
	}
	if p.User == "" {
		missing = append(missing, "ftp_id")
	}
	if p.Password == "" {
		missing = append(missing, "ftp_pw")
	}
	if len(missing) > 0 {
		return Credentials{}, &AccessError{SecretID: secretID, Reason: ReasonMalformed, Err: fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))}
	}

	return Credentials{Host: p.Address, Username: p.User, Password: p.Password}, nil
}

// StaticProvider hands out fixed credentials, e.g. from FTP_HOST/FTP_USER/
// FTP_PASSWORD for local runs. The secret ID is ignored.
type StaticProvider struct {
	Credentials Credentials
}

func (p StaticProvider) GetCredentials(_ context.Context, secretID string) (Credentials, error) {
	if p.Credentials.Host == "" {
		return Credentials{}, &AccessError{SecretID: secretID, Reason: ReasonNotFound, Err: fmt.Errorf("no static FTP host configured")}
	}
	return p.Credentials, nil
}

var _ Provider = StaticProvider{}
