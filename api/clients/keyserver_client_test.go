package clients

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

type countingServer struct {
	id   sui.ObjectID
	hits atomic.Int32
}

// setupKeyServers starts n key servers that answer with an empty key list. Servers
// whose index is in failing respond with 503.
func setupKeyServers(t *testing.T, n int, failing ...int) ([]*KeyServerClient, []*countingServer) {
	t.Helper()
	down := map[int]bool{}
	for _, i := range failing {
		down[i] = true
	}

	var clients []*KeyServerClient
	var counters []*countingServer
	for i := 0; i < n; i++ {
		cs := &countingServer{id: sui.MustParseAddress(fmt.Sprintf("0x%x", 0x700+i))}
		fail := down[i]
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cs.hits.Add(1)
			if fail {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"decryption_keys":[]}`))
		}))
		t.Cleanup(ts.Close)

		counters = append(counters, cs)
		clients = append(clients, NewKeyServerClient(interfaces.KeyServerInfo{
			ObjectID: cs.id, Name: fmt.Sprintf("ks-%d", i), URL: ts.URL,
		}))
	}
	return clients, counters
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchKeysWithThreshold_StopsAtThreshold(t *testing.T) {
	servers, counters := setupKeyServers(t, 4, 1)

	responses, err := FetchKeysWithThreshold(context.Background(), servers, &seal.FetchKeyRequest{}, 2, discardLogger())
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, counters[0].id, responses[0].ServerID)
	assert.Equal(t, counters[2].id, responses[1].ServerID)

	assert.Equal(t, int32(1), counters[0].hits.Load())
	assert.Equal(t, int32(1), counters[1].hits.Load())
	assert.Equal(t, int32(1), counters[2].hits.Load())
	assert.Equal(t, int32(0), counters[3].hits.Load())
}

func TestFetchKeysWithThreshold_Insufficient(t *testing.T) {
	servers, counters := setupKeyServers(t, 3, 0, 2)

	_, err := FetchKeysWithThreshold(context.Background(), servers, &seal.FetchKeyRequest{}, 2, discardLogger())
	require.ErrorIs(t, err, interfaces.ErrInsufficientShares)
	for _, c := range counters {
		assert.Equal(t, int32(1), c.hits.Load())
	}
}

func TestFetchKeysWithThreshold_Canceled(t *testing.T) {
	servers, counters := setupKeyServers(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchKeysWithThreshold(ctx, servers, &seal.FetchKeyRequest{}, 2, discardLogger())
	require.ErrorIs(t, err, context.Canceled)
	for _, c := range counters {
		assert.Equal(t, int32(0), c.hits.Load())
	}
}

func TestFetchKey_ErrorStatus(t *testing.T) {
	servers, _ := setupKeyServers(t, 1, 0)

	_, err := servers[0].FetchKey(context.Background(), &seal.FetchKeyRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
