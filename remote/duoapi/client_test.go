package duoapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"f0oster/adsync/identity"
	"f0oster/adsync/remote"
)

const (
	testIntegrationKey = "DIXXXXXXXXXXXXXXXXXX"
	testSecretKey      = "test-secret-key"
)

// newTestClient wires a Client at a local TLS server and returns both. The
// handler must verify signatures itself via verifySignature.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		Host:           strings.TrimPrefix(server.URL, "https://"),
		IntegrationKey: testIntegrationKey,
		SecretKey:      testSecretKey,
		Retries:        1,
		BackoffMin:     time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		CallTimeout:    5 * time.Second,
	}, zap.NewNop().Sugar())
	client.http.HTTPClient = server.Client()

	return client, server
}

// verifySignature recomputes the canonical-request HMAC from what actually
// arrived and checks it against the Authorization header.
func verifySignature(t *testing.T, r *http.Request, host string) {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	r.Body = io.NopCloser(strings.NewReader(string(body)))

	canon := strings.Join([]string{
		r.Header.Get("Date"),
		strings.ToUpper(r.Method),
		strings.ToLower(host),
		r.URL.RequestURI(),
		string(body),
	}, "\n")

	mac := hmac.New(sha1.New, []byte(testSecretKey))
	mac.Write([]byte(canon))
	wantSig := hex.EncodeToString(mac.Sum(nil))
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte(testIntegrationKey+":"+wantSig))

	assert.Equal(t, wantAuth, r.Header.Get("Authorization"), "request signature mismatch")
}

func TestCreateMany_SignsAndDecodesOutcomes(t *testing.T) {
	var client *Client
	var gotRequest batchRequest

	handler := func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r, client.cfg.Host)
		assert.Equal(t, batchCreatePath, r.URL.Path)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(map[string]any{
			"stat": "OK",
			"response": map[string]any{
				"results": []map[string]any{
					{"username": "alice", "status": "ok"},
					{"username": "bob", "status": "error", "message": "duplicate email"},
				},
			},
		})
	}
	client, _ = newTestClient(t, handler)

	members := []remote.Member{
		{ObjectGUID: uuid.New(), Identity: "alice", Email: "alice@corp.com", GroupsToAdd: []string{"mfa-users"}},
		{ObjectGUID: uuid.New(), Identity: "bob"},
	}

	outcomes, err := client.CreateMany(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, gotRequest.Users, 2)
	assert.Equal(t, "alice", gotRequest.Users[0].Username)
	assert.Equal(t, "alice@corp.com", gotRequest.Users[0].Email)
	assert.Equal(t, []string{"mfa-users"}, gotRequest.Users[0].GroupsToAdd)

	require.Len(t, outcomes, 2)
	assert.Equal(t, remote.Outcome{Identity: "alice"}, outcomes[0])
	assert.Equal(t, remote.Outcome{Identity: "bob", Rejected: true, Reason: "duplicate email"}, outcomes[1])
}

func TestDeleteMany_SendsUsernames(t *testing.T) {
	var gotRequest batchRequest

	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, batchDeletePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(map[string]any{
			"stat": "OK",
			"response": map[string]any{
				"results": []map[string]any{{"username": "alice", "status": "ok"}},
			},
		})
	}
	client, _ := newTestClient(t, handler)

	outcomes, err := client.DeleteMany(context.Background(), []identity.Identity{"alice"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, gotRequest.Usernames)
	assert.Empty(t, gotRequest.Users)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Rejected)
}

func TestPostBatch_EmptyBatchSkipsTheWire(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	}
	client, _ := newTestClient(t, handler)

	outcomes, err := client.UpdateMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, outcomes)
}

func TestPostBatch_FailedStatIsBatchError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"stat":    "FAIL",
			"message": "invalid integration key",
		})
	}
	client, _ := newTestClient(t, handler)

	_, err := client.CreateMany(context.Background(), []remote.Member{{Identity: "alice"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid integration key")
}

func TestGetAllIdentities_FollowsNextOffset(t *testing.T) {
	var offsets []string

	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, listUsersPath, r.URL.Path)
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		if offset == "0" {
			next := 2
			json.NewEncoder(w).Encode(listResponse{
				Stat: "OK",
				Response: []struct {
					Username string `json:"username"`
				}{{Username: "alice"}, {Username: "bob"}},
				Metadata: struct {
					NextOffset *int `json:"next_offset"`
				}{NextOffset: &next},
			})
			return
		}

		json.NewEncoder(w).Encode(listResponse{
			Stat: "OK",
			Response: []struct {
				Username string `json:"username"`
			}{{Username: "carol"}},
		})
	}
	client, _ := newTestClient(t, handler)

	identities, err := client.GetAllIdentities(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "2"}, offsets)
	assert.Equal(t, []identity.Identity{"alice", "bob", "carol"}, identities)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	attempts := 0

	handler := func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"stat": "OK",
			"response": map[string]any{
				"results": []map[string]any{{"username": "alice", "status": "ok"}},
			},
		})
	}
	client, _ := newTestClient(t, handler)

	outcomes, err := client.CreateMany(context.Background(), []remote.Member{{Identity: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Len(t, outcomes, 1)
}
