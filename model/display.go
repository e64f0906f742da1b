package model

import (
	"strings"

	"github.com/google/uuid"
)

// PlaceholderPrefix marks ids minted for display only
const PlaceholderPrefix = "display:"

// DisplayPlaceholder returns a throwaway id for rendering records that have no
// resolvable identity. It must never reach a mutating endpoint.
func DisplayPlaceholder() string {
	return PlaceholderPrefix + uuid.New().String()
}

func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
