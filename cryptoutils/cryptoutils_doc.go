// Package cryptoutils holds the enclave's signing identity and the primitives
// around it.
//
// # Identity
//
// Keypair is the ed25519 key generated when the process starts. It never leaves
// memory. It signs every agent response envelope and the Seal session
// certificates. Its Sui address is blake2b-256(0x00 || pk).
//
// # Symmetric encryption
//
// DeriveKey (HKDF-SHA256) and the AES-256-GCM helpers back the Seal DEM and
// key derivation.
//
// # Attestation
//
// AttestationProvider produces a TDX quote whose report data is
// ReportDataForPublicKey(identity.PublicKey()). Three providers exist:
//
//   - qemu-tdx: the local configfs-tsm interface
//   - remote-tdx: an HTTP quote provider
//   - dummy: a fixed string for development
//
// VerifyDCAPAttestation checks such a quote and returns its measurement registers.
package cryptoutils
