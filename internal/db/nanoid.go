package db

import "github.com/hazyhaar/pkg/idgen"

// NewID generates a 12-character base-36 ID for audit entries and requests.
func NewID() string {
	return idgen.New()
}
