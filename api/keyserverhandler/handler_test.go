package keyserverhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/kms"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

var (
	allowedPackage = sui.MustParseAddress("0xa11")
	otherPackage   = sui.MustParseAddress("0xb22")
)

func newRouter(t *testing.T) (*chi.Mux, *seal.KeyServer) {
	t.Helper()
	master, err := seal.MasterKeyFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	ks := seal.NewKeyServer(sui.MustParseAddress("0x77"), master, []sui.ObjectID{allowedPackage})

	mux := chi.NewRouter()
	NewHandler(ks, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterRoutes(mux)
	return mux, ks
}

func fetchKeyRequest(t *testing.T, ks *seal.KeyServer, pkg sui.ObjectID, now time.Time) []byte {
	t.Helper()
	identity, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	loader, err := kms.NewKeyLoader(kms.LoaderConfig{
		PackageID:  pkg,
		EnclaveID:  sui.MustParseAddress("0xe1"),
		KeyID:      []byte("API_KEY"),
		KeyServers: []sui.ObjectID{ks.ObjectID()},
		PublicKeys: []seal.G2Element{ks.PublicKey()},
		Threshold:  1,
	}, identity, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	loader.WithClock(func() time.Time { return now })

	req, err := loader.BeginRetrieval(context.Background())
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func post(mux http.Handler, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/fetch_key", bytes.NewReader(body)))
	return w
}

func TestHandleFetchKey_Success(t *testing.T) {
	mux, ks := newRouter(t)

	w := post(mux, fetchKeyRequest(t, ks, allowedPackage, time.Now()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp seal.FetchKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.DecryptionKeys, 1)
	assert.Equal(t, seal.FullID(allowedPackage, []byte("API_KEY")), []byte(resp.DecryptionKeys[0].ID))
}

func TestHandleFetchKey_Rejections(t *testing.T) {
	mux, ks := newRouter(t)

	w := post(mux, fetchKeyRequest(t, ks, otherPackage, time.Now()))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(mux, fetchKeyRequest(t, ks, allowedPackage, time.Now().Add(-24*time.Hour)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(mux, []byte(`{"ptb":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestHandleService(t *testing.T) {
	mux, ks := newRouter(t)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/service", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ServiceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ks.ObjectID().String(), resp.ServiceID)
	assert.Equal(t, ks.PublicKey().Hex(), resp.PublicKey)
}
