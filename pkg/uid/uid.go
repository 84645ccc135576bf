package uid

import (
	"strings"

	"github.com/google/uuid"
)

// OfflinePrefix marks identifiers minted on a device before the server has seen the record.
const OfflinePrefix = "offline_"

// New generates a new unique identifier.
func New() string {
	return uuid.New().String()
}

// NewOffline generates a client-side identifier for a record created without connectivity.
func NewOffline() string {
	return OfflinePrefix + uuid.New().String()
}

// IsOffline reports whether id was minted by NewOffline.
func IsOffline(id string) bool {
	return strings.HasPrefix(id, OfflinePrefix) && IsValid(strings.TrimPrefix(id, OfflinePrefix))
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
