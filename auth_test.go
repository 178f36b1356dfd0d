package domainsplit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/goether"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedMint(t *testing.T, signer *goether.Signer, ts int64, domain string) (*http.Request, []byte) {
	body, err := json.Marshal(schema.ReqMint{To: creator.Hex(), DomainName: domain})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(schema.CallerHeader, admin.Hex())
	signRequest(t, req, signer, ts, body)
	return req, body
}

func serve(s *Domainsplit, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestSignedCaller(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UnixMilli()

	// no signature
	req := httptest.NewRequest(http.MethodPost, "/fees/withdraw", nil)
	req.Header.Set(schema.CallerHeader, admin.Hex())
	w := serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// signed by someone else
	req, _ = newSignedMint(t, creatorSigner, now, "alice.eth")
	w = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ErrInvalidSignature.Error())

	// stale timestamp
	req, _ = newSignedMint(t, adminSigner, now-(10*time.Minute).Milliseconds(), "alice.eth")
	w = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ErrExpiredSignature.Error())

	// body changed after signing
	req, _ = newSignedMint(t, adminSigner, now, "alice.eth")
	tampered, err := json.Marshal(schema.ReqMint{To: buyer.Hex(), DomainName: "alice.eth"})
	require.NoError(t, err)
	req.Body = httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader(tampered)).Body
	w = serve(s, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a valid request is served once
	req, body := newSignedMint(t, adminSigner, now, "alice.eth")
	w = serve(s, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader(body))
	replay.Header = req.Header.Clone()
	w = serve(s, replay)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ErrReplayedRequest.Error())
	assert.Equal(t, creator, getToken(t, s, "/token/1").Owner)
}

func TestUnsignedCallerMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t.TempDir())
	cfg.UnsignedCaller = true
	s := New(cfg)
	defer s.Close()

	body, err := json.Marshal(schema.ReqMint{To: creator.Hex(), DomainName: "alice.eth"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader(body))
	req.Header.Set(schema.CallerHeader, admin.Hex())
	w := serve(s, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
