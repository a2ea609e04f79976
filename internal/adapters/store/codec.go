// Package store holds what the SQL backings share: the column codecs for
// attachments, reactions and meta.
package store

import (
	"encoding/json"

	"github.com/dkeye/Molian/internal/domain"
)

const (
	EmptyAttachments = "[]"
	EmptyReactions   = "{}"
)

// Attachments returns the stored text for a list, defaulting to "[]".
func Attachments(raw json.RawMessage) string {
	if len(raw) == 0 || !json.Valid(raw) {
		return EmptyAttachments
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return EmptyAttachments
	}
	return string(raw)
}

func DecodeAttachments(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(EmptyAttachments)
	}
	return json.RawMessage(s)
}

func EncodeReactions(r domain.Reactions) (string, error) {
	if len(r) == 0 {
		return EmptyReactions, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeReactions never fails; a corrupt column reads as no reactions.
func DecodeReactions(s string) domain.Reactions {
	r := domain.Reactions{}
	if s == "" {
		return r
	}
	_ = json.Unmarshal([]byte(s), &r)
	if r == nil {
		r = domain.Reactions{}
	}
	return r
}

func EncodeMeta(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" || !json.Valid(raw) {
		return nil
	}
	s := string(raw)
	return &s
}

func DecodeMeta(s *string) json.RawMessage {
	if s == nil || !json.Valid([]byte(*s)) {
		return nil
	}
	return json.RawMessage(*s)
}

func MessageIDPtr(s *string) *domain.MessageID {
	if s == nil {
		return nil
	}
	id := domain.MessageID(*s)
	return &id
}

func StringPtr(id *domain.MessageID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

// Unique drops duplicates and the given user, keeping order.
func Unique(ids []domain.UserID, skip domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(ids))
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if id == skip || !id.Valid() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
