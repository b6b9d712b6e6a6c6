package models

// ExternalTokenClaims is the transient claim set extracted from an
// already-validated federated token. Signature verification is the token
// validator's job; this core only performs identity binding.
type ExternalTokenClaims struct {
	OID          string // subject object id at the identity provider
	UPN          string // user principal name, usually localpart@domain
	IDP          string // issuing identity provider
	Name         string
	EmailAddress string
}
