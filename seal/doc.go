// Package seal implements the client side of Seal threshold key management, plus a
// development key server.
//
// A secret is encrypted once under an identity (package id ‖ key id) for a set of key
// servers. Its random 32-byte base key is Shamir-split, and every share is masked with
// a Boneh-Franklin IBE key on BLS12-381 that only the corresponding server's master
// key can derive. The plaintext itself is sealed with AES-256-GCM under a key derived
// from the base key.
//
// To decrypt, a requester sends a FetchKeyRequest to the servers: a policy
// transaction they evaluate, an ephemeral ElGamal key to encrypt the answer to, and a
// Certificate delegating the request to a short-lived session key. Each server returns
// the user secret key for the identity, ElGamal-encrypted. Any threshold of them
// recover the base key.
//
// Wire types encode with BCS for transport between the enclave and its host and with
// JSON for the key server HTTP API.
package seal
