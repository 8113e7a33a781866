// Package authdata converts between a provider credential and the canonical
// auth-data mapping exchanged with the backend linking API.
//
// The mapping has exactly three keys:
//
//	{"id": "...", "access_token": "...", "expiration_date": "2015-07-03T00:00:00.000Z"}
//
// A nil mapping stands for an unlink request.
package authdata

import (
	"errors"
	"fmt"
	"time"
)

// Keys of the auth-data mapping. External collaborators depend on these exact names.
const (
	KeyID             = "id"
	KeyAccessToken    = "access_token"
	KeyExpirationDate = "expiration_date"
)

// TimeLayout is the fixed UTC, millisecond precision layout used for expiration_date.
// Go time formatting never consults the host locale, so the output is always ASCII digits.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// AuthData is the auth-data mapping for one auth type.
type AuthData map[string]string

// Credential is the decoded form of an AuthData mapping.
type Credential struct {
	SubjectID   string    // Provider-assigned subject identifier.
	AccessToken string    // Opaque credential string.
	Expiration  time.Time // Always UTC.
}

// ErrNilPayload is wrapped by MalformedPayloadError when Decode receives an unlink payload.
var ErrNilPayload = errors.New("nil auth data")

// MalformedPayloadError reports an auth-data mapping that cannot be decoded.
type MalformedPayloadError struct {
	Key   string // Offending key, empty for a nil payload.
	Value string // Offending value, if any.
	Err   error  // Underlying cause.
}

func (e *MalformedPayloadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("malformed auth data: %v", e.Err)
	}
	if e.Value == "" {
		return fmt.Sprintf("malformed auth data: %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("malformed auth data: %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

var errMissingKey = errors.New("missing required key")

// Format renders t in TimeLayout after converting it to UTC.
func Format(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Parse is the inverse of Format. It rejects anything that does not match TimeLayout exactly.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Encode builds the auth-data mapping for a successful login.
func Encode(subjectID, credential string, expiration time.Time) AuthData {
	return AuthData{
		KeyID:             subjectID,
		KeyAccessToken:    credential,
		KeyExpirationDate: Format(expiration),
	}
}

// Decode parses an auth-data mapping. All three keys are required.
func Decode(data AuthData) (Credential, error) {
	if data == nil {
		return Credential{}, &MalformedPayloadError{Err: ErrNilPayload}
	}
	for _, key := range []string{KeyID, KeyAccessToken, KeyExpirationDate} {
		if data[key] == "" {
			return Credential{}, &MalformedPayloadError{Key: key, Err: errMissingKey}
		}
	}
	raw := data[KeyExpirationDate]
	expiration, err := Parse(raw)
	if err != nil {
		return Credential{}, &MalformedPayloadError{Key: KeyExpirationDate, Value: raw, Err: err}
	}
	return Credential{
		SubjectID:   data[KeyID],
		AccessToken: data[KeyAccessToken],
		Expiration:  expiration,
	}, nil
}

// IsUnlink reports whether data represents an unlink request.
func IsUnlink(data AuthData) bool {
	return data == nil
}

// Clone returns a copy of data so callers cannot mutate a resolved payload.
func (d AuthData) Clone() AuthData {
	if d == nil {
		return nil
	}
	out := make(AuthData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
