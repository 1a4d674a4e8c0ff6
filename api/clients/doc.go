/*
Package clients provides the host-side clients of the Seal key retrieval.

KeyServerClient posts FetchKeyRequests to a key server's /v1/fetch_key endpoint with
the Client-Sdk-Type and Client-Sdk-Version headers key servers expect.

FetchKeysWithThreshold walks the configured servers in order, skips the ones that
fail, and stops once threshold responses are collected:

	servers := make([]*clients.KeyServerClient, len(infos))
	for i, info := range infos {
		servers[i] = clients.NewKeyServerClient(info)
	}
	responses, err := clients.FetchKeysWithThreshold(ctx, servers, req, threshold, log)

The responses are then BCS encoded and handed to the enclave's
/seal/complete_parameter_load endpoint, see sealhandler.Client.
*/
package clients
