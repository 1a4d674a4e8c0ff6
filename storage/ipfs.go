package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

// DefaultIPFSRoot is the MFS directory content is written under.
const DefaultIPFSRoot = "/enclave-agent"

// IPFSBackend keeps content in the mutable file system of an IPFS node, addressed
// by content id rather than CID so that every backend shares one naming scheme.
type IPFSBackend struct {
	shell       *shell.Shell
	apiAddr     string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend connects to the node API at apiAddr (host:port).
//
// Parameters:
//   - apiAddr: IPFS API address, usually port 5001
//   - root: MFS directory to keep content under, DefaultIPFSRoot if empty
//   - timeout: per request timeout, 0 for none
//   - log: Structured logger
func NewIPFSBackend(apiAddr, root string, timeout time.Duration, log *slog.Logger) *IPFSBackend {
	if root == "" {
		root = DefaultIPFSRoot
	}
	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiAddr)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	uri := fmt.Sprintf("ipfs://%s%s", apiAddr, root)
	if timeout > 0 {
		uri += "?timeout=" + timeout.String()
	}

	return &IPFSBackend{
		shell:       sh,
		apiAddr:     apiAddr,
		root:        root,
		log:         log,
		locationURI: uri,
	}
}

func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	mfsPath, err := b.mfsPath(id, contentType)
	if err != nil {
		return nil, err
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			b.log.Debug("Content not found in IPFS", "path", mfsPath)
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to fetch data from IPFS", "path", mfsPath, "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	mfsPath, err := b.mfsPath(id, contentType)
	if err != nil {
		return id, err
	}

	err = b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return id, fmt.Errorf("failed to write data to IPFS: %w", err)
	}

	b.log.Debug("Stored content in IPFS", "path", mfsPath)
	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s", b.apiAddr)
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	dir, err := namespace(contentType)
	if err != nil {
		return "", err
	}
	return path.Join(b.root, dir, id.String()), nil
}
