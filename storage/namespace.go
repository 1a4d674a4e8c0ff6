package storage

import (
	"fmt"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

// namespace is the directory, key prefix or path segment a content type is stored under.
func namespace(contentType interfaces.ContentType) (string, error) {
	switch contentType {
	case interfaces.EncryptedObjectType:
		return "encrypted-objects", nil
	case interfaces.KeyResponsesType:
		return "key-responses", nil
	default:
		return "", fmt.Errorf("%w: %v", interfaces.ErrUnsupportedContentType, contentType)
	}
}
