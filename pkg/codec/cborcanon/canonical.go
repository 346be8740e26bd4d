// Package cborcanon provides canonical CBOR encoding for chunkvault's
// metadata index values (snapshotRecord, fileEntryRecord, digestRecord
// in internal/store/metadata). Implements CTAP2-style deterministic
// encoding: map keys sort, integers and floats use the shortest form,
// and indefinite-length items are forbidden, so two encodings of an equal record are always
// byte-identical — the property internal/store/metadata.ExportJSON
// and golden-test comparisons both depend on.
package cborcanon

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CanonicalMode is the CBOR encoding mode used throughout: deterministic
// key order, shortest-form floats, integer timestamps.
var CanonicalMode cbor.EncMode

func init() {
	var err error
	CanonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create canonical CBOR mode: %v", err))
	}
}

// Marshal encodes v into canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return CanonicalMode.Marshal(v)
}

// Unmarshal decodes canonical CBOR data into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// CanonicalBytes ensures the input bytes represent canonical CBOR by
// unmarshaling and re-marshaling in canonical form.
func CanonicalBytes(data []byte) ([]byte, error) {
	var v interface{}
	if err := Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid CBOR: %w", err)
	}
	return Marshal(v)
}

// IsCanonical reports whether data is already in canonical form. Used
// by this package's tests to assert that the fileEntryRecord shape
// internal/store/metadata stores round-trips to the exact bytes BadgerDB
// will keep, not just to semantically equal values.
func IsCanonical(data []byte) bool {
	canonical, err := CanonicalBytes(data)
	if err != nil {
		return false
	}
	return bytes.Equal(data, canonical)
}
