// Package providerb implements the Marketplace-B adapter: an HTTP client
// supporting both the relative and absolute quantity encodings, using its
// own idempotency dedup log in the same shape as Marketplace-A's.
package providerb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/lotsync/pkg/provideradapter"
)

const callTimeout = 30 * time.Second

// Dedup suppresses duplicate effects for a given idempotency key.
type Dedup interface {
	Seen(ctx context.Context, key string) (result []byte, ok bool, err error)
	Record(ctx context.Context, key string, result []byte) error
}

// Client calls Marketplace-B's lot API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dedup      Dedup
}

// NewClient creates a Marketplace-B client.
func NewClient(baseURL string, dedup Dedup) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: callTimeout},
		baseURL:    baseURL,
		dedup:      dedup,
	}
}

var _ provideradapter.Adapter = (*Client)(nil)

type createLotRequest struct {
	PartNumber string `json:"partNumber"`
	ColorID    string `json:"colorId"`
	Condition  string `json:"condition"`
	Quantity   int    `json:"quantity"`
	PriceCents *int64 `json:"priceCents,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type createLotResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateLot(ctx context.Context, creds provideradapter.Credentials, payload provideradapter.LotPayload, idempotencyKey string) (provideradapter.CreateResult, error) {
	if cached, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return provideradapter.CreateResult{}, transientErr(err)
	} else if ok {
		var resp createLotResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return provideradapter.CreateResult{ExternalLotID: resp.ID}, nil
		}
	}

	body, err := json.Marshal(createLotRequest{
		PartNumber: payload.PartNumber,
		ColorID:    payload.ColorID,
		Condition:  payload.Condition,
		Quantity:   payload.QuantityAvailable,
		PriceCents: payload.PriceCents,
		Notes:      payload.Notes,
	})
	if err != nil {
		return provideradapter.CreateResult{}, &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}

	var resp createLotResponse
	if err := c.do(ctx, creds, http.MethodPost, "/v2/lots", body, &resp); err != nil {
		return provideradapter.CreateResult{}, err
	}

	respBody, _ := json.Marshal(resp)
	if err := c.dedup.Record(ctx, idempotencyKey, respBody); err != nil {
		return provideradapter.CreateResult{}, transientErr(err)
	}

	return provideradapter.CreateResult{ExternalLotID: resp.ID}, nil
}

// updateLotRequest carries exactly one of the two quantity encodings, never
// both — encodeDelta picks which to populate.
type updateLotRequest struct {
	AbsoluteQuantity *int `json:"absoluteQuantity,omitempty"`
	RelativeQuantity *int `json:"relativeQuantity,omitempty"`
}

// encodeDelta selects Provider B's absolute-or-relative quantity encoding.
func encodeDelta(delta provideradapter.DeltaUpdate) updateLotRequest {
	if delta.UseAbsolute {
		v := delta.AbsoluteQuantity
		return updateLotRequest{AbsoluteQuantity: &v}
	}
	v := delta.RelativeQuantity
	return updateLotRequest{RelativeQuantity: &v}
}

func (c *Client) UpdateLot(ctx context.Context, creds provideradapter.Credentials, externalLotID string, delta provideradapter.DeltaUpdate, idempotencyKey string) error {
	if _, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return transientErr(err)
	} else if ok {
		return nil
	}

	body, err := json.Marshal(encodeDelta(delta))
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}

	path := fmt.Sprintf("/v2/lots/%s", externalLotID)
	if err := c.do(ctx, creds, http.MethodPut, path, body, nil); err != nil {
		return err
	}

	return transientErr(c.dedup.Record(ctx, idempotencyKey, nil))
}

func (c *Client) DeleteLot(ctx context.Context, creds provideradapter.Credentials, externalLotID string, idempotencyKey string) error {
	if _, ok, err := c.dedup.Seen(ctx, idempotencyKey); err != nil {
		return transientErr(err)
	} else if ok {
		return nil
	}

	path := fmt.Sprintf("/v2/lots/%s", externalLotID)
	if err := c.do(ctx, creds, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	return transientErr(c.dedup.Record(ctx, idempotencyKey, nil))
}

func (c *Client) FetchReference(ctx context.Context, creds provideradapter.Credentials, kind provideradapter.ReferenceKind, key string) (provideradapter.ReferenceEntity, error) {
	path := fmt.Sprintf("/v2/reference/%s/%s", kind, key)
	var raw json.RawMessage
	if err := c.do(ctx, creds, http.MethodGet, path, nil, &raw); err != nil {
		return provideradapter.ReferenceEntity{}, err
	}
	return provideradapter.ReferenceEntity{Payload: raw}, nil
}

func (c *Client) do(ctx context.Context, creds provideradapter.Credentials, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrNotFound, Message: "lot not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrRateLimited, Message: "marketplace-B rate limited the request"}
	case resp.StatusCode == http.StatusConflict:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrMissingExternalMap, Message: "marketplace-B color mapping not available"}
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrPermanentValidation, Message: "marketplace-B rejected the payload"}
	case resp.StatusCode >= 500:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Message: fmt.Sprintf("marketplace-B returned HTTP %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Message: fmt.Sprintf("marketplace-B returned unexpected HTTP %d", resp.StatusCode)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
		}
	}
	return nil
}

func transientErr(err error) error {
	if err == nil {
		return nil
	}
	return &provideradapter.AdapterError{Kind: provideradapter.ErrTransient, Err: err}
}
