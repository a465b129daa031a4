package zsock

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

const (
	curveKeyLen    = 32
	curveKeyZ85Len = 40
)

const z85Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var z85Decoder = func() [256]byte {
	var d [256]byte
	for i := range d {
		d[i] = 0xFF
	}
	for i := 0; i < len(z85Alphabet); i++ {
		d[z85Alphabet[i]] = byte(i)
	}
	return d
}()

// Z85Encode encodes data, whose length must be a multiple of 4, in ZeroMQ's
// Z85 text form.
func Z85Encode(data []byte) (string, error) {
	if len(data)%4 != 0 {
		return "", fmt.Errorf("z85: length %d is not a multiple of 4", len(data))
	}
	out := make([]byte, 0, len(data)/4*5)
	for i := 0; i < len(data); i += 4 {
		v := uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		var chunk [5]byte
		for j := 4; j >= 0; j-- {
			chunk[j] = z85Alphabet[v%85]
			v /= 85
		}
		out = append(out, chunk[:]...)
	}
	return string(out), nil
}

// Z85Decode reverses Z85Encode.
func Z85Decode(s string) ([]byte, error) {
	if len(s)%5 != 0 {
		return nil, fmt.Errorf("z85: length %d is not a multiple of 5", len(s))
	}
	out := make([]byte, 0, len(s)/5*4)
	for i := 0; i < len(s); i += 5 {
		var v uint64
		for j := 0; j < 5; j++ {
			d := z85Decoder[s[i+j]]
			if d == 0xFF {
				return nil, fmt.Errorf("z85: invalid character %q", s[i+j])
			}
			v = v*85 + uint64(d)
		}
		if v > 0xFFFFFFFF {
			return nil, fmt.Errorf("z85: chunk %q overflows", s[i:i+5])
		}
		out = append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return out, nil
}

// decodeCurveKey accepts a raw 32 byte key or its 40 character Z85 form.
func decodeCurveKey(v any) ([]byte, error) {
	switch k := v.(type) {
	case []byte:
		if len(k) == curveKeyLen {
			return append([]byte(nil), k...), nil
		}
		if len(k) == curveKeyZ85Len {
			return Z85Decode(string(k))
		}
		return nil, fmt.Errorf("key must be 32 bytes or 40 Z85 characters, got %d bytes", len(k))
	case string:
		if len(k) == curveKeyZ85Len {
			return Z85Decode(k)
		}
		if len(k) == curveKeyLen {
			return []byte(k), nil
		}
		return nil, fmt.Errorf("key must be 32 bytes or 40 Z85 characters, got %d characters", len(k))
	}
	return nil, fmt.Errorf("key must be []byte or string, got %T", v)
}

// CurvePublicKey derives the public key belonging to secret.
func CurvePublicKey(secret []byte) ([]byte, error) {
	return curve25519.X25519(secret, curve25519.Basepoint)
}

// GenerateCurveKeyPair returns a fresh public and secret key in Z85 form.
func GenerateCurveKeyPair() (public, secret string, err error) {
	raw := make([]byte, curveKeyLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	pub, err := CurvePublicKey(raw)
	if err != nil {
		return "", "", err
	}
	if public, err = Z85Encode(pub); err != nil {
		return "", "", err
	}
	if secret, err = Z85Encode(raw); err != nil {
		return "", "", err
	}
	return public, secret, nil
}
