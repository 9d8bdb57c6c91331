// Package event defines the message entity that flows through the whole
// pipeline, its invariants, and its wire codec.
package event

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Aayush-engineer/chatflux/errors"
)

// MaxBodyLength is the maximum body size in Unicode code points, enforced
// at ingestion and re-checked before every store write (the log can be fed
// by any producer).
const MaxBodyLength = 5000

// DefaultStreamID is the stream events land in when none is given.
const DefaultStreamID = "global"

// SystemOriginKey is the log partition key sentinel for events that do not
// originate from a client connection.
const SystemOriginKey = "system"

// Kind classifies an event. The enum is closed; anything else is rejected
// at ingestion.
type Kind string

// Event kinds
const (
	KindUser   Kind = "user"
	KindSystem Kind = "system"
	KindJoin   Kind = "join"
	KindLeave  Kind = "leave"
)

// Valid reports whether k is a member of the closed kind enum.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindSystem, KindJoin, KindLeave:
		return true
	}
	return false
}

// Event is the unit flowing through the pipeline. CreatedAt is assigned
// once at ingestion by the fan-out coordinator and never reassigned
// downstream; it is the sole ordering key. Identity for dedup purposes is
// (OriginID, CreatedAt) and is NOT guaranteed unique, so consumers must
// treat duplicates as tolerable.
type Event struct {
	OriginID   string         `json:"originId"             validate:"required"`
	Body       string         `json:"body"                 validate:"required,max=5000"`
	Kind       Kind           `json:"kind"                 validate:"omitempty,oneof=user system join leave"`
	StreamID   string         `json:"streamId"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  int64          `json:"createdAt"` // Unix milliseconds
}

// validator max= counts runes for strings, matching the code point invariant
var validate = validator.New()

// Normalize applies enum and stream defaults in place. It does not touch
// CreatedAt.
func (e *Event) Normalize() {
	if e.Kind == "" {
		e.Kind = KindUser
	}
	if e.StreamID == "" {
		e.StreamID = DefaultStreamID
	}
}

// Validate checks the event invariants. Returns an invalid-classified
// error naming the first violated constraint.
func (e *Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			switch {
			case verrs[0].Field() == "Body" && verrs[0].Tag() == "max":
				return errors.WrapInvalid(errors.ErrBodyTooLong, "Event", "Validate", "check body length")
			case verrs[0].Field() == "Body":
				return errors.WrapInvalid(errors.ErrBodyRequired, "Event", "Validate", "check body")
			case verrs[0].Field() == "Kind":
				return errors.WrapInvalid(errors.ErrInvalidKind, "Event", "Validate", "check kind")
			}
		}
		return errors.WrapInvalid(err, "Event", "Validate", "check event")
	}
	if e.Kind != "" && !e.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidKind, "Event", "Validate", "check kind")
	}
	return nil
}

// PartitionKey returns the durable log partition key: the origin id, or the
// system sentinel for system-originated events. All events from one origin
// land in the same partition, giving per-origin ordering within the log.
func (e *Event) PartitionKey() string {
	if e.OriginID == "" {
		return SystemOriginKey
	}
	return e.OriginID
}

// Time returns CreatedAt as a time.Time.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// Marshal encodes the event as its flat key-value wire record.
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Event", "Marshal", "encode event")
	}
	return data, nil
}

// Unmarshal decodes a wire record into an Event.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, errors.WrapInvalid(errors.ErrInvalidData, "Event", "Unmarshal", "decode event")
	}
	return e, nil
}
