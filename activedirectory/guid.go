package activedirectory

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Active Directory stores objectGUID with the first three fields
// little-endian; RFC 4122 is big-endian throughout.

func adGuidToUUID(adGuid []byte) (uuid.UUID, error) {
	if len(adGuid) != 16 {
		return uuid.Nil, errors.Newf("invalid GUID: expected 16 bytes, got %d", len(adGuid))
	}

	rfcBytes := make([]byte, 16)
	copy(rfcBytes, adGuid)

	rfcBytes[0], rfcBytes[1], rfcBytes[2], rfcBytes[3] = rfcBytes[3], rfcBytes[2], rfcBytes[1], rfcBytes[0]
	rfcBytes[4], rfcBytes[5] = rfcBytes[5], rfcBytes[4]
	rfcBytes[6], rfcBytes[7] = rfcBytes[7], rfcBytes[6]

	u, err := uuid.FromBytes(rfcBytes)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "invalid UUID generated from AD GUID")
	}
	return u, nil
}

func uuidToADGuid(u uuid.UUID) []byte {
	adBytes := make([]byte, 16)
	copy(adBytes, u[:])

	adBytes[0], adBytes[1], adBytes[2], adBytes[3] = adBytes[3], adBytes[2], adBytes[1], adBytes[0]
	adBytes[4], adBytes[5] = adBytes[5], adBytes[4]
	adBytes[6], adBytes[7] = adBytes[7], adBytes[6]

	return adBytes
}
