package errors

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Is reports whether err carries this code.
func (c Code[MT]) Is(err error) bool {
	if err == nil {
		return false
	}
	e, ok := err.(Error)
	return ok && e.Code() == c.Code
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type CheckoutStatusMetadata struct {
	TokenId  string `json:"token_id"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

type CustodianUpdateMetadata struct {
	Subject          string `json:"subject"`
	Status           string `json:"status,omitempty"`
	RequestTimestamp int64  `json:"request_timestamp,omitempty"`
	Now              int64  `json:"now,omitempty"`
}

type AuctionMetadata struct {
	OfferId string `json:"offer_id"`
	EndTime int64  `json:"end_time"`
	Now     int64  `json:"now"`
}

type InvalidBidMetadata struct {
	OfferId string `json:"offer_id"`
	Amount  uint64 `json:"amount"`
	MinBid  uint64 `json:"min_bid"`
}

type PeriodNotOverMetadata struct {
	Subject       string `json:"subject"`
	AccrualCursor int64  `json:"accrual_cursor"`
	Period        int64  `json:"period"`
	Now           int64  `json:"now"`
}

type VaultMetadata struct {
	Subject string `json:"subject"`
}

type InsufficientBalanceMetadata struct {
	Subject  string `json:"subject"`
	Balance  uint64 `json:"balance"`
	Required uint64 `json:"required"`
}

type InsufficientFundsMetadata struct {
	Account   string `json:"account"`
	Token     string `json:"token"`
	Available uint64 `json:"available"`
	Required  uint64 `json:"required"`
}

type AccessDeniedMetadata struct {
	Caller string `json:"caller"`
	Entity string `json:"entity,omitempty"`
	Role   string `json:"role,omitempty"`
}

type OfferMetadata struct {
	OfferId string `json:"offer_id"`
}

type ItemCheckedOutMetadata struct {
	Subject string `json:"subject"`
	TokenId string `json:"token_id"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}

var INVALID_CHECKOUT_REQUEST_STATUS = Code[CheckoutStatusMetadata]{
	1,
	"INVALID_CHECKOUT_REQUEST_STATUS",
	grpccodes.FailedPrecondition,
}

var INVALID_CUSTODIAN_UPDATE_STATUS = Code[CustodianUpdateMetadata]{
	2,
	"INVALID_CUSTODIAN_UPDATE_STATUS",
	grpccodes.FailedPrecondition,
}
var AUCTION_ONGOING = Code[AuctionMetadata]{3, "AUCTION_ONGOING", grpccodes.FailedPrecondition}

var AUCTION_NOT_STARTED = Code[AuctionMetadata]{
	4,
	"AUCTION_NOT_STARTED",
	grpccodes.FailedPrecondition,
}
var AUCTION_ENDED = Code[AuctionMetadata]{5, "AUCTION_ENDED", grpccodes.FailedPrecondition}

var ITEM_CHECKED_OUT = Code[ItemCheckedOutMetadata]{
	6,
	"ITEM_CHECKED_OUT",
	grpccodes.FailedPrecondition,
}
var PERIOD_NOT_OVER = Code[PeriodNotOverMetadata]{7, "PERIOD_NOT_OVER", grpccodes.FailedPrecondition}

var UPDATE_REQUEST_TOO_RECENT = Code[CustodianUpdateMetadata]{
	8,
	"UPDATE_REQUEST_TOO_RECENT",
	grpccodes.FailedPrecondition,
}

var UPDATE_REQUEST_EXPIRED = Code[CustodianUpdateMetadata]{
	9,
	"UPDATE_REQUEST_EXPIRED",
	grpccodes.DeadlineExceeded,
}

var INSUFFICIENT_VAULT_BALANCE = Code[InsufficientBalanceMetadata]{
	10,
	"INSUFFICIENT_VAULT_BALANCE",
	grpccodes.FailedPrecondition,
}
var INACTIVE_VAULT = Code[VaultMetadata]{11, "INACTIVE_VAULT", grpccodes.FailedPrecondition}
var INVALID_BID = Code[InvalidBidMetadata]{12, "INVALID_BID", grpccodes.InvalidArgument}

var INSUFFICIENT_FUNDS = Code[InsufficientFundsMetadata]{
	13,
	"INSUFFICIENT_FUNDS",
	grpccodes.FailedPrecondition,
}
var INVALID_AMOUNT = Code[any]{14, "INVALID_AMOUNT", grpccodes.InvalidArgument}
var AMOUNT_OVERFLOW = Code[any]{15, "AMOUNT_OVERFLOW", grpccodes.OutOfRange}
var ACCESS_DENIED = Code[AccessDeniedMetadata]{16, "ACCESS_DENIED", grpccodes.PermissionDenied}
var OFFER_NOT_FOUND = Code[OfferMetadata]{17, "OFFER_NOT_FOUND", grpccodes.NotFound}
var VAULT_NOT_FOUND = Code[VaultMetadata]{18, "VAULT_NOT_FOUND", grpccodes.NotFound}
var INVALID_SUBJECT_ID = Code[any]{19, "INVALID_SUBJECT_ID", grpccodes.InvalidArgument}
var INVALID_OFFER = Code[OfferMetadata]{20, "INVALID_OFFER", grpccodes.InvalidArgument}
var AUCTION_NOT_NEEDED = Code[AuctionMetadata]{21, "AUCTION_NOT_NEEDED", grpccodes.FailedPrecondition}
var NOT_FOUND = Code[map[string]any]{22, "NOT_FOUND", grpccodes.NotFound}

var INVALID_CUSTODIAN_UPDATE = Code[CustodianUpdateMetadata]{
	23,
	"INVALID_CUSTODIAN_UPDATE",
	grpccodes.InvalidArgument,
}

var INVALID_REQUEST = Code[map[string]any]{24, "INVALID_REQUEST", grpccodes.InvalidArgument}
