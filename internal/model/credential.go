package model

import "github.com/rs/zerolog"

// CredentialHeader is the inbound header carrying the caller's Holded API key.
const CredentialHeader = "X-Holded-API-Key"

// UpstreamKeyHeader is the header Holded expects the API key under.
const UpstreamKeyHeader = "key"

// Credential is an opaque Holded API key. The relay only checks it is present;
// Holded decides whether it is valid.
type Credential string

// Empty reports whether no key was supplied.
func (c Credential) Empty() bool { return c == "" }

// String redacts the key so it never reaches logs by accident.
func (c Credential) String() string {
	if c.Empty() {
		return ""
	}
	return "[redacted]"
}

// MarshalZerologObject logs only whether a key is set and its length.
func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("present", !c.Empty()).Int("len", len(c))
}
