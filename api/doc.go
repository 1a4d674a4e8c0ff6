/*
Package api holds the wire types shared by the agent's HTTP surfaces and their clients.

The subpackages are:

  - server: listener lifecycle, health and drain endpoints, logging, metrics, CORS
  - agenthandler: the public agent endpoints, every response signed by the process key
  - sealhandler: the host-only endpoints driving the two-phase Seal key retrieval
  - keyserverhandler: a dev Seal key server speaking the /v1/fetch_key protocol
  - clients: key server clients and the threshold fetch loop used by the host

Every failing request is answered with HTTP 400 and an ErrorResponse body.
*/
package api
