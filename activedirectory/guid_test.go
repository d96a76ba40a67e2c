package activedirectory

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdGuidToUUID_MixedEndianConversion(t *testing.T) {
	// objectGUID bytes as AD stores them: the first three fields are
	// little-endian.
	adBytes := []byte{
		0x04, 0x03, 0x02, 0x01,
		0x06, 0x05,
		0x08, 0x07,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	}

	u, err := adGuidToUUID(adBytes)
	require.NoError(t, err)
	assert.Equal(t, "01020304-0506-0708-090a-0b0c0d0e0f10", u.String())
}

func TestAdGuidToUUID_RejectsWrongLength(t *testing.T) {
	_, err := adGuidToUUID([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestGuidRoundTrip(t *testing.T) {
	original := uuid.New()

	back, err := adGuidToUUID(uuidToADGuid(original))
	require.NoError(t, err)
	assert.Equal(t, original, back)
}
