// Package codec defines the pluggable chunk-payload codec contract from
// §6. The codec itself is explicitly out of scope for this spec (see
// spec.md §1 Non-goals); only the identity codec is implemented here,
// and C5 invokes whatever Codec it is configured with on the path
// between the in-memory chunk bytes and the on-disk object payload.
package codec

// Codec transforms chunk payload bytes for storage. Digest identity is
// always computed over the uncompressed bytes (the Codec's Decode
// output), per §6: "digest remains the hash of the uncompressed bytes."
type Codec interface {
	// Name identifies the codec, stored in the object header so Get can
	// select the matching Decode.
	Name() string

	// Encode transforms plaintext chunk bytes into the on-disk payload.
	Encode(plain []byte) ([]byte, error)

	// Decode reverses Encode.
	Decode(encoded []byte) ([]byte, error)
}

// Identity is the no-op codec: the stored payload is exactly the chunk
// bytes. It is the default, and the only codec this repository ships,
// since compression is a pluggable collaborator outside this spec's
// core (spec.md §1).
type Identity struct{}

// Name implements Codec.
func (Identity) Name() string { return "identity" }

// Encode implements Codec.
func (Identity) Encode(plain []byte) ([]byte, error) { return plain, nil }

// Decode implements Codec.
func (Identity) Decode(encoded []byte) ([]byte, error) { return encoded, nil }
