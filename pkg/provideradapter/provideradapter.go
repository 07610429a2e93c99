// Package provideradapter defines the uniform contract every marketplace
// adapter implements. The drain worker (pkg/drainworker) is polymorphic over
// Provider A and Provider B through this interface alone — it never branches
// on provider identity except to pick which adapter to call and how to
// encode a quantity delta.
package provideradapter

import (
	"context"
	"errors"
)

// Provider identifies a marketplace.
type Provider string

const (
	ProviderA Provider = "A"
	ProviderB Provider = "B"
)

// ErrorKind classifies every adapter failure into one of a fixed set so the
// drain worker never has to interpret a raw transport error.
type ErrorKind string

const (
	ErrRateLimited           ErrorKind = "rate_limited"
	ErrTransient             ErrorKind = "transient"
	ErrPermanentValidation   ErrorKind = "permanent_validation"
	ErrMissingExternalMap    ErrorKind = "missing_external_mapping"
	ErrNotFound              ErrorKind = "not_found"
)

// AdapterError wraps an upstream failure with its classification.
type AdapterError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Classify reports the ErrorKind of err, defaulting to transient for any
// error not itself an *AdapterError — an un-classified failure is always
// treated as retryable rather than silently dropped.
func Classify(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrTransient
}

// LotPayload describes the item fields an adapter needs to create or update
// a mirrored marketplace lot.
type LotPayload struct {
	PartNumber        string
	ColorID           string
	Condition         string
	QuantityAvailable int
	PriceCents        *int64
	Notes             string
}

// CreateResult is returned by a successful CreateLot call.
type CreateResult struct {
	ExternalLotID string
}

// DeltaUpdate carries both supported delta encodings; the adapter uses
// whichever field its provider's wire format expects. The drain worker fills
// in both so adapters never need to ask the caller to re-encode.
type DeltaUpdate struct {
	// SignedDelta is the net change since the anchor, formatted "+N" or
	// "-N" — Provider A's wire format.
	SignedDelta int
	// RelativeQuantity is the same net change as a plain integer —
	// Provider B's default encoding.
	RelativeQuantity int
	// AbsoluteQuantity is the item's current quantityAvailable — Provider
	// B's alternate encoding, used when the caller prefers absolute sync.
	AbsoluteQuantity int
	// UseAbsolute selects AbsoluteQuantity over RelativeQuantity for
	// providers that support both.
	UseAbsolute bool
}

// ReferenceKind enumerates the reference-catalog entities an adapter can
// fetch.
type ReferenceKind string

const (
	ReferencePart      ReferenceKind = "part"
	ReferencePartColor ReferenceKind = "partColor"
	ReferencePriceGuide ReferenceKind = "priceGuide"
	ReferenceColor     ReferenceKind = "color"
	ReferenceCategory  ReferenceKind = "category"
)

// ReferenceEntity is the raw payload fetched for a reference-catalog row;
// the catalog worker persists it as opaque JSON.
type ReferenceEntity struct {
	Payload []byte
}

// Credentials is the per-tenant, per-provider secret material an adapter
// needs to authenticate. Adapters never log these.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Adapter is the uniform contract every marketplace integration implements.
// Every method suppresses duplicate effects for idempotencyKey within at
// least a 24h window — either natively, if the upstream API supports it, or
// via the adapter's own deduplication log.
type Adapter interface {
	CreateLot(ctx context.Context, creds Credentials, payload LotPayload, idempotencyKey string) (CreateResult, error)
	UpdateLot(ctx context.Context, creds Credentials, externalLotID string, delta DeltaUpdate, idempotencyKey string) error
	DeleteLot(ctx context.Context, creds Credentials, externalLotID string, idempotencyKey string) error
	FetchReference(ctx context.Context, creds Credentials, kind ReferenceKind, key string) (ReferenceEntity, error)
}
