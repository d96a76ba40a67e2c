// Package duoapi implements the remote identity port against a Duo-style
// admin API: HMAC-SHA1 signed requests, JSON batch endpoints, per-item
// outcomes. Transport-level retries with exponential backoff and a per-call
// timeout are handled here; callers see only the partial-failure contract of
// remote.Client.
package duoapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"f0oster/adsync/identity"
	"f0oster/adsync/remote"
)

const (
	batchCreatePath = "/admin/v1/users/batch_create"
	batchUpdatePath = "/admin/v1/users/batch_update"
	batchDeletePath = "/admin/v1/users/batch_delete"
	listUsersPath   = "/admin/v1/users"

	listPageLimit = 300
)

// Config carries the endpoint credentials and the resilience policy for the
// client. Retry count, backoff bounds, and the per-call timeout are decided
// by the operator, not by this package.
type Config struct {
	Host           string
	IntegrationKey string
	SecretKey      string

	Retries     int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	CallTimeout time.Duration
}

type Client struct {
	cfg    Config
	http   *retryablehttp.Client
	logger *zap.SugaredLogger
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = cfg.Retries
	httpClient.RetryWaitMin = cfg.BackoffMin
	httpClient.RetryWaitMax = cfg.BackoffMax
	httpClient.Logger = &leveledLogger{logger: logger}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}
}

// wire types

type userPayload struct {
	UserID         string   `json:"user_id"`
	Username       string   `json:"username"`
	RealName       string   `json:"realname,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	GroupsToAdd    []string `json:"groups_to_add,omitempty"`
	GroupsToRemove []string `json:"groups_to_remove,omitempty"`
}

type batchRequest struct {
	Users []userPayload `json:"users,omitempty"`
	// Usernames is used by batch_delete.
	Usernames []string `json:"usernames,omitempty"`
}

type itemResult struct {
	Username string `json:"username"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

type batchResponse struct {
	Stat     string `json:"stat"`
	Response struct {
		Results []itemResult `json:"results"`
	} `json:"response"`
	Message string `json:"message,omitempty"`
}

type listResponse struct {
	Stat     string `json:"stat"`
	Response []struct {
		Username string `json:"username"`
	} `json:"response"`
	Metadata struct {
		NextOffset *int `json:"next_offset"`
	} `json:"metadata"`
}

func (c *Client) CreateMany(ctx context.Context, members []remote.Member) ([]remote.Outcome, error) {
	return c.postBatch(ctx, batchCreatePath, batchRequest{Users: toPayloads(members)}, len(members))
}

func (c *Client) UpdateMany(ctx context.Context, members []remote.Member) ([]remote.Outcome, error) {
	return c.postBatch(ctx, batchUpdatePath, batchRequest{Users: toPayloads(members)}, len(members))
}

func (c *Client) DeleteMany(ctx context.Context, identities []identity.Identity) ([]remote.Outcome, error) {
	usernames := make([]string, len(identities))
	for i, id := range identities {
		usernames[i] = id.String()
	}
	return c.postBatch(ctx, batchDeletePath, batchRequest{Usernames: usernames}, len(identities))
}

// GetAllIdentities pages through every user the remote service holds.
func (c *Client) GetAllIdentities(ctx context.Context) ([]identity.Identity, error) {
	var identities []identity.Identity

	offset := 0
	for {
		path := fmt.Sprintf("%s?limit=%d&offset=%d", listUsersPath, listPageLimit, offset)
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrap(err, "decoding user list response")
		}
		if page.Stat != "OK" {
			return nil, errors.Newf("user list call failed: %s", page.Stat)
		}

		for _, user := range page.Response {
			identities = append(identities, identity.Identity(user.Username))
		}

		if page.Metadata.NextOffset == nil {
			return identities, nil
		}
		offset = *page.Metadata.NextOffset
	}
}

func (c *Client) postBatch(ctx context.Context, path string, req batchRequest, itemCount int) ([]remote.Outcome, error) {
	if itemCount == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding batch request")
	}

	body, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var decoded batchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decoding batch response")
	}
	if decoded.Stat != "OK" {
		return nil, errors.Newf("batch call %s failed: %s (%s)", path, decoded.Stat, decoded.Message)
	}

	outcomes := make([]remote.Outcome, 0, len(decoded.Response.Results))
	for _, result := range decoded.Response.Results {
		outcomes = append(outcomes, remote.Outcome{
			Identity: identity.Identity(result.Username),
			Rejected: result.Status != "ok",
			Reason:   result.Message,
		})
	}
	return outcomes, nil
}

// do issues one signed request with the configured per-call timeout. The
// retryablehttp client retries transport failures and 5xx responses with
// exponential backoff before do returns an error.
func (c *Client) do(ctx context.Context, method, pathAndQuery string, payload []byte) ([]byte, error) {
	callCtx := ctx
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	url := fmt.Sprintf("https://%s%s", c.cfg.Host, pathAndQuery)
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := retryablehttp.NewRequestWithContext(callCtx, method, url, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}

	date := time.Now().UTC().Format(time.RFC1123Z)
	req.Header.Set("Date", date)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authorization(date, method, pathAndQuery, payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, pathAndQuery)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("%s %s: %s: %s", method, pathAndQuery, resp.Status, string(body))
	}

	return body, nil
}

// authorization builds the HMAC-SHA1 signature over the canonical request
// (date, method, host, path-and-query, body) and wraps it in basic auth with
// the integration key.
func (c *Client) authorization(date, method, pathAndQuery string, payload []byte) string {
	canon := strings.Join([]string{
		date,
		strings.ToUpper(method),
		strings.ToLower(c.cfg.Host),
		pathAndQuery,
		string(payload),
	}, "\n")

	mac := hmac.New(sha1.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(canon))
	signature := hex.EncodeToString(mac.Sum(nil))

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.IntegrationKey + ":" + signature))
	return "Basic " + credentials
}

func toPayloads(members []remote.Member) []userPayload {
	payloads := make([]userPayload, len(members))
	for i, m := range members {
		payloads[i] = userPayload{
			UserID:         m.ObjectGUID.String(),
			Username:       m.Identity.String(),
			RealName:       m.RealName,
			Email:          m.Email,
			Phone:          m.Phone,
			GroupsToAdd:    m.GroupsToAdd,
			GroupsToRemove: m.GroupsToRemove,
		}
	}
	return payloads
}

// leveledLogger adapts zap's SugaredLogger to retryablehttp's LeveledLogger.
type leveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
