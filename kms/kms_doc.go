// Package kms loads secrets into the enclave from a Seal key server committee.
//
// Secrets are stored outside the enclave as seal.EncryptedObject values. The KeyLoader
// asks the committee for the identity keys that decrypt them, via the host, without
// the host ever seeing a usable key: every answer is ElGamal-encrypted to a secret
// generated inside the enclave for that retrieval.
//
// Usage:
//
//	loader, err := kms.NewKeyLoader(cfg, identity, log)
//	req, err := loader.BeginRetrieval(ctx)
//	// host sends req to the key servers and collects responses
//	secret, err := loader.CompleteRetrieval(ctx, obj, responses)
package kms
