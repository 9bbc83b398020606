package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type SubjectKind uint8

const (
	SubjectKindToken SubjectKind = iota
	SubjectKindOfferBatch
)

func (k SubjectKind) String() string {
	return []string{
		"token",
		"batch",
	}[k]
}

// SubjectId identifies what a vault or a custodian update refers to: a single
// token of an offer or the whole batch of items of an offer.
type SubjectId struct {
	Kind       SubjectKind
	OfferId    string
	LocalIndex uint32
}

func NewTokenId(offerId string, index uint32) SubjectId {
	return SubjectId{Kind: SubjectKindToken, OfferId: offerId, LocalIndex: index}
}

func NewBatchId(offerId string) SubjectId {
	return SubjectId{Kind: SubjectKindOfferBatch, OfferId: offerId}
}

func ParseSubjectId(s string) (SubjectId, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 3 && parts[0] == SubjectKindToken.String():
		if err := validateOfferId(parts[1]); err != nil {
			return SubjectId{}, err
		}
		index, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return SubjectId{}, fmt.Errorf("invalid token index %q", parts[2])
		}
		return NewTokenId(parts[1], uint32(index)), nil
	case len(parts) == 2 && parts[0] == SubjectKindOfferBatch.String():
		if err := validateOfferId(parts[1]); err != nil {
			return SubjectId{}, err
		}
		return NewBatchId(parts[1]), nil
	default:
		return SubjectId{}, fmt.Errorf("invalid subject id %q", s)
	}
}

func (s SubjectId) String() string {
	if s.Kind == SubjectKindOfferBatch {
		return fmt.Sprintf("%s:%s", s.Kind, s.OfferId)
	}
	return fmt.Sprintf("%s:%s:%d", s.Kind, s.OfferId, s.LocalIndex)
}

func (s SubjectId) IsToken() bool {
	return s.Kind == SubjectKindToken
}

func (s SubjectId) IsZero() bool {
	return s.OfferId == ""
}

func (s SubjectId) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SubjectId) UnmarshalText(text []byte) error {
	id, err := ParseSubjectId(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

func validateOfferId(id string) error {
	if id == "" {
		return fmt.Errorf("missing offer id")
	}
	if strings.ContainsAny(id, ": /") {
		return fmt.Errorf("offer id %q contains reserved characters", id)
	}
	return nil
}
