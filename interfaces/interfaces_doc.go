// Package interfaces defines the contracts between the enclave agent's components
// and the errors they share.
//
// # Chain
//
//   - ChainClient: balances, swaps, transfers and key server directory lookups.
//     The mock and live implementations live in the chain package.
//   - TransactionSigner: the signing side of a wallet, handed to ChainClient calls.
//
// # Storage
//
//   - StorageBackend: content-addressed storage for encrypted objects across
//     file, S3, IPFS and Vault backends.
//   - StorageBackendFactory: creates backends from location URIs.
//
// # Errors
//
// Every domain failure is one of the sentinel errors in this package, possibly
// wrapped with context. Failed calls to remote services are ExternalServiceError
// values, which match ErrExternalService:
//
//	if errors.Is(err, interfaces.ErrExternalService) {
//	    // the chain node or key server failed
//	}
package interfaces
