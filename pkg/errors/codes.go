package errors

import "net/http"

// Code is the stable, client-facing identifier of a failure class.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// Sale engine failures.
	CodeStoneNotFound         Code = "STONE_NOT_FOUND"
	CodeInsufficientInventory Code = "INSUFFICIENT_INVENTORY"
	CodeInventoryUpdateFailed Code = "INVENTORY_UPDATE_FAILED"
	CodePersistenceFailed     Code = "PERSISTENCE_FAILED"
	CodeSaleCreationFailed    Code = "SALE_CREATION_FAILED"
	CodeCompensationFailed    Code = "COMPENSATION_FAILED"
)

// Metadata decides how a code is rendered to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// MessageAllowed lets the error's own message replace PublicMessage.
	MessageAllowed bool
}

type policy uint8

const (
	retry policy = 1 << iota
	details
	message
)

func meta(status int, p policy, public string) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      p&retry != 0,
		PublicMessage:  public,
		DetailsAllowed: p&details != 0,
		MessageAllowed: p&message != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:   meta(http.StatusBadRequest, details|message, "validation failed"),
	CodeUnauthorized: meta(http.StatusUnauthorized, message, "authentication required"),
	CodeForbidden:    meta(http.StatusForbidden, message, "access denied"),
	CodeNotFound:     meta(http.StatusNotFound, message, "resource not found"),
	CodeConflict:     meta(http.StatusConflict, message, "conflict detected"),
	CodeIdempotency:  meta(http.StatusConflict, details|message, "idempotency key reused"),
	CodeInternal:     meta(http.StatusInternalServerError, retry, "internal server error"),
	CodeDependency:   meta(http.StatusServiceUnavailable, retry|details, "dependency unavailable"),

	CodeStoneNotFound:         meta(http.StatusUnprocessableEntity, details|message, "stone reference could not be resolved"),
	CodeInsufficientInventory: meta(http.StatusConflict, details|message, "insufficient inventory"),
	CodeInventoryUpdateFailed: meta(http.StatusServiceUnavailable, retry|details, "inventory update failed"),
	CodePersistenceFailed:     meta(http.StatusServiceUnavailable, retry|details, "sale could not be persisted"),
	CodeSaleCreationFailed:    meta(http.StatusServiceUnavailable, retry|details, "sale creation failed"),
	// Stock may already be consumed, so retrying blindly could double-sell.
	CodeCompensationFailed: meta(http.StatusInternalServerError, details, "inventory compensation failed; manual reconciliation required"),
}

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}
