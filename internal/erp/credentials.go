package erp

import (
	"encoding/base64"
	"errors"
	"log/slog"
)

var ErrMissingCredentials = errors.New("erp: username and access key are required")

// Credentials is the Basic-auth token shared by every outbound ERP call.
// It redacts itself when printed or logged.
type Credentials struct {
	token string
}

func NewCredentials(username, accessKey string) (Credentials, error) {
	if username == "" || accessKey == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return Credentials{token: base64.StdEncoding.EncodeToString([]byte(username + ":" + accessKey))}, nil
}

// Header returns the Authorization header value.
func (c Credentials) Header() string {
	return "Basic " + c.token
}

func (c Credentials) IsZero() bool {
	return c.token == ""
}

func (c Credentials) String() string {
	return "[REDACTED]"
}

func (c Credentials) GoString() string {
	return "erp.Credentials{[REDACTED]}"
}

func (c Credentials) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}
