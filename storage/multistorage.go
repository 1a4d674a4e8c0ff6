package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

// ErrContentMismatch is returned when a backend serves data whose hash differs from the requested id.
var ErrContentMismatch = errors.New("content does not match its id")

// MultiStorageBackend fans stores out to every available backend and fetches
// from the first one that returns content matching the requested id.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", "backend", backend.Name(), "contentID", id.String())
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil && interfaces.ComputeID(data) != id {
			err = ErrContentMismatch
		}
		if err == nil {
			m.log.Info("Fetched content",
				slog.String("backend", backend.Name()),
				slog.String("contentID", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrContentNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend", "backend", backend.Name(), "err", err)
	}

	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}
	if notFound == len(errs) {
		return nil, interfaces.ErrContentNotFound
	}
	m.log.Error("All backends failed to fetch content", "contentID", id.String(), "failed", len(errs))
	return nil, fmt.Errorf("all backends failed to fetch %s: %w", id.String(), errors.Join(errs...))
}

// Store succeeds if at least one backend accepted the data.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	stored := 0
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", "backend", backend.Name())
			continue
		}

		got, err := backend.Store(ctx, data, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend", "backend", backend.Name(), "err", err)
			continue
		}
		if got != id {
			m.log.Warn("Backend returned unexpected content id",
				"backend", backend.Name(), "expected", id.String(), "actual", got.String())
		}
		stored++
	}

	if stored == 0 {
		if len(errs) == 0 {
			return interfaces.ContentID{}, interfaces.ErrBackendUnavailable
		}
		return interfaces.ContentID{}, fmt.Errorf("all backends failed to store data: %w", errors.Join(errs...))
	}

	m.log.Info("Stored content", "contentID", id.String(), "backends", stored)
	return id, nil
}

func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
