package repositories

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefixes lists the key families of the relay store.
var Prefixes = []string{"account:", "email:", "account_order:", "conv:", "msg:", "summary:", "revoked:", "search_seq:"}

// Record is a readable view of one stored entry, for the inspection tools.
// Password hashes are never part of it.
type Record struct {
	Kind      string
	Entity    string
	Timestamp time.Time
	Detail    string
}

// Describe decodes a raw Badger entry. Unknown keys and undecodable
// values come back as a RAW record rather than an error.
func Describe(key string, val []byte) Record {
	kind, rest, _ := strings.Cut(key, ":")
	rec := Record{Kind: "RAW", Entity: rest, Detail: fmt.Sprintf("%d bytes", len(val))}

	switch kind {
	case "account":
		a, _, err := decodeAccount(val)
		if err != nil {
			rec.Detail = err.Error()
			return rec
		}
		rec.Kind, rec.Timestamp = "ACCOUNT", a.CreatedAt
		rec.Detail = fmt.Sprintf("%s <%s> %s %s", a.DisplayName, a.Email, a.Initials, a.ColorTag)
	case "email":
		rec.Kind, rec.Detail = "EMAIL", "-> "+string(val)
	case "account_order":
		rec.Kind = "ORDER"
		if ts, id, ok := strings.Cut(rest, ":"); ok {
			rec.Entity, rec.Detail = id, "registration order"
			if nano, err := strconv.ParseInt(ts, 10, 64); err == nil {
				rec.Timestamp = time.Unix(0, nano).UTC()
			}
		}
	case "conv":
		r, err := decodeRecord(val)
		if err != nil {
			rec.Detail = err.Error()
			return rec
		}
		rec.Kind, rec.Timestamp = "HEAD", r.timestamp(metaFieldLastAt)
		rec.Detail = fmt.Sprintf("last seq %d", r.varint(metaFieldLastSeq))
	case "msg":
		m, err := decodeMessage(val)
		if err != nil {
			rec.Detail = err.Error()
			return rec
		}
		rec.Kind, rec.Entity, rec.Timestamp = "MESSAGE", string(m.Conversation), m.CreatedAt
		rec.Detail = fmt.Sprintf("#%d %s: %s", m.Seq, m.SenderID, m.Text)
	case "summary":
		s, err := decodeSummary(val)
		if err != nil {
			rec.Detail = err.Error()
			return rec
		}
		rec.Kind, rec.Entity, rec.Timestamp = "SUMMARY", string(s.Owner), s.LastMessageAt
		rec.Detail = fmt.Sprintf("with %s #%d: %s", s.Counterpart, s.LastSeq, s.LastMessageText)
	case "revoked":
		rec.Kind, rec.Detail = "REVOKED", "session revoked"
	case "search_seq":
		r, err := decodeRecord(val)
		if err != nil {
			rec.Detail = err.Error()
			return rec
		}
		rec.Kind, rec.Detail = "INDEXED", fmt.Sprintf("searchable up to #%d", r.varint(watermarkFieldSeq))
	}
	return rec
}
