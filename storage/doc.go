// Package storage keeps Seal encrypted objects and collected key responses in
// content-addressed backends, so the host and the CLI can pass large blobs by
// their SHA-256 id instead of inline hex.
//
// Backends are created from location URIs:
//
//	file:///var/lib/enclave-agent
//	s3://bucket/prefix?region=us-west-2
//	ipfs://127.0.0.1:5001/enclave-agent
//	vault://vault.example.com:8200/secret/enclave-agent
//
// Every backend stores each content type under its own namespace
// ("encrypted-objects", "key-responses"). MultiStorageBackend writes to all
// available backends and verifies fetched content against its id.
package storage
