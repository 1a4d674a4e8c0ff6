package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is the SHA-256 hash of stored content.
type ContentID [32]byte

// NewContentIDFromHex parses a 64 digit hex content id, with or without a 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var id ContentID
	copy(id[:], raw)
	return id, nil
}

// ComputeID calculates the content ID of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ContentType namespaces stored content.
type ContentType int

const (
	// EncryptedObjectType holds BCS-encoded Seal encrypted objects.
	EncryptedObjectType ContentType = iota
	// KeyResponsesType holds BCS-encoded key server responses collected by the host.
	KeyResponsesType
)

func (ct ContentType) String() string {
	switch ct {
	case EncryptedObjectType:
		return "encrypted-object"
	case KeyResponsesType:
		return "key-responses"
	default:
		return "unknown"
	}
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrUnsupportedContentType is returned for content types a backend has no namespace for.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// StorageBackend provides content-addressed data storage.
type StorageBackend interface {
	// Fetch retrieves data by content ID and type.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns its content ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a file://, s3://, ipfs:// or vault:// URI.
	StorageBackendFor(locationURI string) (StorageBackend, error)

	// CreateMultiBackend creates an aggregated backend over every valid location.
	CreateMultiBackend(locationURIs []string) (StorageBackend, error)
}
