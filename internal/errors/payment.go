package errors

import "errors"

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")
var ErrStoreUnavailable = errors.New("record store unavailable")
var ErrNotFound = errors.New("record not found")
var ErrMalformedRequest = errors.New("malformed request")
var ErrInvalidSignature = errors.New("invalid webhook signature")
var ErrIntentCompleted = errors.New("payment already completed")

var ErrUnindexedField = errors.New("field is not indexed")
var ErrKeyConflict = errors.New("key value already belongs to another record")
var ErrImmutableField = errors.New("field is immutable")

var ErrDispatcherClosed = errors.New("dispatcher is closed")
