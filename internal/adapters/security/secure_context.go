package security

import "runtime"

// Zeroize overwrites a buffer in place. runtime.KeepAlive stops the compiler
// from eliding the writes as dead stores.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}

// WithSecureContext is the only sanctioned site for unwrapped key material.
// It obtains key bytes from keyFactory, hands them to body, and wipes them on
// every exit path: normal return, error, and panic. body must not retain the
// key slice or any alias of it past its return.
func WithSecureContext(keyFactory func() ([]byte, error), body func(key []byte) error) error {
	key, err := keyFactory()
	if err != nil {
		if key != nil {
			Zeroize(key)
		}
		return err
	}
	defer Zeroize(key)
	return body(key)
}

// Contexts adapts the package-level helpers to the ports.SecureContexts
// interface.
type Contexts struct{}

func NewContexts() Contexts {
	return Contexts{}
}

func (Contexts) WithSecureContext(keyFactory func() ([]byte, error), body func(key []byte) error) error {
	return WithSecureContext(keyFactory, body)
}

func (Contexts) Zeroize(buf []byte) {
	Zeroize(buf)
}
