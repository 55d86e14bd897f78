package ports

// Envelope is the per-skill key pipeline: DEK generation, KEK wrap/unwrap,
// and AEAD encryption of the rule plaintext.
type Envelope interface {
	GenerateDEK() ([]byte, error)
	WrapDEK(dek []byte) ([]byte, error)
	UnwrapDEK(wrapped []byte) ([]byte, error)
	EncryptKnowledge(plaintext, dek []byte) ([]byte, error)
	DecryptKnowledge(envelope, dek []byte) ([]byte, error)
}

// SecureContexts scopes key material: WithSecureContext obtains key bytes
// from keyFactory, passes them to body, and zeroizes the buffer on every
// exit path including panic. Zeroize wipes any other sensitive buffer the
// caller holds.
type SecureContexts interface {
	WithSecureContext(keyFactory func() ([]byte, error), body func(key []byte) error) error
	Zeroize(buf []byte)
}

// TokenVerifier authenticates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (AuthClaims, error)
}

type AuthClaims struct {
	UserID string
	Tier   string
	Role   string
}

func (c AuthClaims) Admin() bool { return c.Role == "admin" }
