package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/gematik/zero-rar/pkg/oauth2"
	"github.com/gematik/zero-rar/pkg/rar"
	xoauth2 "golang.org/x/oauth2"
)

// APIClient calls the resource server with the access token of the user.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type APIResponse struct {
	StatusCode int
	Body       []byte
}

func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Denial decodes the step-up signal of the API. It returns nil for any
// other response.
func (r *APIResponse) Denial() *rar.Error {
	if r.StatusCode != http.StatusForbidden {
		return nil
	}
	var body struct {
		rar.Error
		LegacyTransactionID string `json:"transaction_id"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return nil
	}
	if body.Code != oauth2.InsufficientAuthorizationDetails {
		return nil
	}
	denial := body.Error
	denial.Kind = rar.KindInsufficientAuthorizationDetails
	if denial.TransactionID == "" {
		denial.TransactionID = body.LegacyTransactionID
	}
	return &denial
}

// Failure turns a non-2xx response into an error for the error view.
func (r *APIResponse) Failure() *rar.Error {
	var body rar.Error
	if err := json.Unmarshal(r.Body, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(r.StatusCode)
	}
	body.Status = r.StatusCode
	body.Kind = rar.KindUpstreamDenied
	if r.StatusCode >= http.StatusInternalServerError {
		body.Kind = rar.KindUpstreamUnavailable
	}
	return &body
}

// Do sends the request with the token in the Authorization header. The
// response is returned whatever its status is, only transport failures
// are errors.
func (a *APIClient) Do(ctx context.Context, token *xoauth2.Token, method, path string, body any) (*APIResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != nil {
		token.SetAuthHeader(req)
		slog.Info("Send request to API", "method", method, "path", path, "token_type", token.Type())
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, rar.Wrap(rar.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rar.Wrap(rar.ErrUpstreamUnavailable, fmt.Errorf("read response body: %w", err))
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

func (a *APIClient) Balance(ctx context.Context, token *xoauth2.Token) (float64, error) {
	resp, err := a.Do(ctx, token, http.MethodGet, "/balance", nil)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, resp.Failure()
	}
	var balance struct {
		Balance float64 `json:"balance"`
	}
	if err := json.Unmarshal(resp.Body, &balance); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return balance.Balance, nil
}

func (a *APIClient) Reports(ctx context.Context, token *xoauth2.Token) ([]ledger.Entry, error) {
	resp, err := a.Do(ctx, token, http.MethodGet, "/reports", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Failure()
	}
	var entries []ledger.Entry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return entries, nil
}

// SubmitTransaction posts the transaction. A step-up denial is returned as
// *rar.Error of kind KindInsufficientAuthorizationDetails.
func (a *APIClient) SubmitTransaction(ctx context.Context, token *xoauth2.Token, req rar.TransactionRequest) error {
	resp, err := a.Do(ctx, token, http.MethodPost, "/transaction", req)
	if err != nil {
		return err
	}
	if denial := resp.Denial(); denial != nil {
		return denial
	}
	if !resp.OK() {
		return resp.Failure()
	}
	return nil
}
