package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageID is the id a sending client put on a message.
type MessageID string

// StanzaID is the id a server or room assigned to a message (XEP-0359).
type StanzaID string

const placeholderPrefix = "!!"

// MessageLikeID is either the protocol id of a message or a locally generated
// placeholder for messages that arrived without one.
type MessageLikeID string

// NewMessageLikeID wraps a protocol message id.
func NewMessageLikeID(id MessageID) MessageLikeID {
	return MessageLikeID(id)
}

// IsPlaceholder reports whether the id was generated locally.
func (id MessageLikeID) IsPlaceholder() bool {
	return strings.HasPrefix(string(id), placeholderPrefix)
}

// OriginalID returns the protocol message id, or false for placeholders.
func (id MessageLikeID) OriginalID() (MessageID, bool) {
	if id == "" || id.IsPlaceholder() {
		return "", false
	}
	return MessageID(id), true
}

func (id MessageLikeID) String() string { return string(id) }

// IDGenerator hands out placeholder ids.
type IDGenerator interface {
	NewPlaceholder() MessageLikeID
}

// UUIDGenerator generates placeholders from random UUIDs.
type UUIDGenerator struct{}

// NewPlaceholder implements IDGenerator.
func (UUIDGenerator) NewPlaceholder() MessageLikeID {
	return MessageLikeID(placeholderPrefix + uuid.NewString())
}

// IDOrPlaceholder wraps id, or generates a placeholder if id is empty.
func IDOrPlaceholder(id string, gen IDGenerator) MessageLikeID {
	if id == "" {
		return gen.NewPlaceholder()
	}
	return NewMessageLikeID(MessageID(id))
}

// TargetKind tells which id space a MessageTargetID refers to.
type TargetKind string

const (
	TargetMessageID TargetKind = "message"
	TargetStanzaID  TargetKind = "stanza"
)

// MessageTargetID is the reference a modifier uses to point at an earlier
// message, in either id space.
type MessageTargetID struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// TargetByMessageID references a message by its client id.
func TargetByMessageID(id MessageID) MessageTargetID {
	return MessageTargetID{Kind: TargetMessageID, ID: string(id)}
}

// TargetByStanzaID references a message by its server assigned id.
func TargetByStanzaID(id StanzaID) MessageTargetID {
	return MessageTargetID{Kind: TargetStanzaID, ID: string(id)}
}

// Swapped returns the same id interpreted in the other id space.
func (t MessageTargetID) Swapped() MessageTargetID {
	if t.Kind == TargetMessageID {
		return MessageTargetID{Kind: TargetStanzaID, ID: t.ID}
	}
	return MessageTargetID{Kind: TargetMessageID, ID: t.ID}
}

func (t MessageTargetID) String() string {
	return string(t.Kind) + ":" + t.ID
}

// Emoji is a single reaction.
type Emoji string

// Attachment is an out-of-band file reference.
type Attachment struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PayloadKind names a Payload variant. It is stored alongside the encoded
// payload.
type PayloadKind string

const (
	KindMessage         PayloadKind = "message"
	KindCorrection      PayloadKind = "correction"
	KindReaction        PayloadKind = "reaction"
	KindRetraction      PayloadKind = "retraction"
	KindDeliveryReceipt PayloadKind = "delivery_receipt"
	KindReadReceipt     PayloadKind = "read_receipt"
)

// Payload is what a MessageLike carries.
type Payload interface {
	Kind() PayloadKind
}

// MessagePayload is an original message.
type MessagePayload struct {
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// CorrectionPayload replaces the body and attachments of its target.
type CorrectionPayload struct {
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ReactionPayload is the complete set of reactions the sender has on the
// target. An empty set removes them all.
type ReactionPayload struct {
	Emojis []Emoji `json:"emojis"`
}

// RetractionPayload hides its target.
type RetractionPayload struct{}

// DeliveryReceiptPayload marks its target as delivered.
type DeliveryReceiptPayload struct{}

// ReadReceiptPayload marks its target as read.
type ReadReceiptPayload struct{}

func (MessagePayload) Kind() PayloadKind         { return KindMessage }
func (CorrectionPayload) Kind() PayloadKind      { return KindCorrection }
func (ReactionPayload) Kind() PayloadKind        { return KindReaction }
func (RetractionPayload) Kind() PayloadKind      { return KindRetraction }
func (DeliveryReceiptPayload) Kind() PayloadKind { return KindDeliveryReceipt }
func (ReadReceiptPayload) Kind() PayloadKind     { return KindReadReceipt }

// DecodePayload restores a payload written with json.Marshal.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindMessage:
		var v MessagePayload
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindCorrection:
		var v CorrectionPayload
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindReaction:
		var v ReactionPayload
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p = v
	case KindRetraction:
		p = RetractionPayload{}
	case KindDeliveryReceipt:
		p = DeliveryReceiptPayload{}
	case KindReadReceipt:
		p = ReadReceiptPayload{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
	return p, nil
}

var (
	ErrMissingPayload   = errors.New("message has no payload")
	ErrMissingTarget    = errors.New("modifier has no target")
	ErrUnexpectedTarget = errors.New("original message must not have a target")
	ErrMissingSender    = errors.New("message has no sender")
)

// MessageLike is one message shaped record: an original or something that
// modifies an earlier one.
type MessageLike struct {
	ID        MessageLikeID
	StanzaID  StanzaID
	Target    *MessageTargetID
	To        string
	From      ParticipantID
	Timestamp time.Time
	Payload   Payload
}

// Validate checks that only originals come without a target.
func (m MessageLike) Validate() error {
	if m.Payload == nil {
		return ErrMissingPayload
	}
	if m.From.IsZero() {
		return ErrMissingSender
	}
	_, original := m.Payload.(MessagePayload)
	switch {
	case original && m.Target != nil:
		return ErrUnexpectedTarget
	case !original && m.Target == nil:
		return ErrMissingTarget
	}
	return nil
}
