package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := NewFieldSchema("orders-v1", "1", []Field{{Name: "_id", Type: FieldLong}})

	encoded, err := s.Encode(map[string]any{"_id": 1})
	require.NoError(t, err)

	decoded, err := s.Decode(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 1, decoded["_id"])

	reencoded, err := s.Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, encoded, reencoded)
}

func TestValidateRejectsWrongType(t *testing.T) {
	s := NewFieldSchema("orders-v1", "1", []Field{{Name: "_id", Type: FieldLong}})
	err := s.Validate(map[string]any{"_id": "not-a-number"})
	require.Error(t, err)
}
