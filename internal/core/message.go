// Package core holds the platform-independent data model shared by every
// Vellum component: the chat DTOs, KB/credentials records, memory records
// and bus events. Nothing in here talks to a chat platform, a filesystem or
// a subprocess directly.
package core

import (
	"encoding/hex"
	"hash/fnv"
	"strings"
)

// ContentType mirrors the content kinds a chat adapter can forward.
type ContentType string

const (
	ContentText      ContentType = "text"
	ContentPhoto     ContentType = "photo"
	ContentDocument  ContentType = "document"
	ContentVideo     ContentType = "video"
	ContentAudio     ContentType = "audio"
	ContentVoice     ContentType = "voice"
	ContentAnimation ContentType = "animation"
	ContentSticker   ContentType = "sticker"
	ContentOther     ContentType = "other"
)

// MediaHandle is an opaque pointer to platform-side media (file ID, URL,
// or local path) carried alongside an IncomingMessage.
type MediaHandle struct {
	FileID   string `json:"fileId,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	SizeByte int64  `json:"sizeByte,omitempty"`
}

// IncomingMessage is the platform-independent DTO produced by a chat
// adapter (§3 spec.md) and consumed by the router (C8).
type IncomingMessage struct {
	MessageID   int64       `json:"messageId"`
	ChatID      int64       `json:"chatId"`
	UserID      int64       `json:"userId"`
	Text        string      `json:"text"`
	ContentType ContentType `json:"contentType"`
	Timestamp   int64       `json:"timestamp"` // unix seconds
	Caption     string      `json:"caption,omitempty"`

	// Forwarding metadata. A message is "forwarded" per the invariant in
	// IsForwarded below.
	ForwardDate          int64  `json:"forwardDate,omitempty"`
	ForwardSenderName    string `json:"forwardSenderName,omitempty"`
	ForwardFromChatID    *int64 `json:"forwardFromChatId,omitempty"`
	ForwardFromMessageID *int64 `json:"forwardFromMessageId,omitempty"`

	Media []MediaHandle `json:"media,omitempty"`
}

// IsForwarded implements the universal invariant from spec.md §8:
// isForwarded = forwardDate>0 ∨ forwardFromChatId≠nil ∨ (forwardSenderName≠nil ∧ nonblank).
func (m IncomingMessage) IsForwarded() bool {
	if m.ForwardDate > 0 {
		return true
	}
	if m.ForwardFromChatID != nil {
		return true
	}
	if strings.TrimSpace(m.ForwardSenderName) != "" {
		return true
	}
	return false
}

// MessageGroup is an append-only ordered sequence of IncomingMessage
// belonging to one chatId (C5 Message Aggregator). It is created on the
// first message, sealed when idle beyond GroupTimeout, and consumed
// exactly once by the dispatch callback.
type MessageGroup struct {
	ChatID         int64
	UserID         int64
	Messages       []IncomingMessage
	FirstTimestamp int64
	LastTimestamp  int64
}

// Add appends a message, updating the first/last timestamps. Callers must
// hold whatever lock guards the owning aggregator's map.
func (g *MessageGroup) Add(msg IncomingMessage) {
	if len(g.Messages) == 0 {
		g.FirstTimestamp = msg.Timestamp
		g.UserID = msg.UserID
		g.ChatID = msg.ChatID
	}
	g.Messages = append(g.Messages, msg)
	if msg.Timestamp > g.LastTimestamp {
		g.LastTimestamp = msg.Timestamp
	}
}

// Hash is a content fingerprint of the group, cheap enough to recompute on
// every Add; used for idempotent-dispatch diagnostics, not for correctness.
func (g *MessageGroup) Hash() string {
	var b strings.Builder
	for _, m := range g.Messages {
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Mode is the per-user operating mode selected by C8's router.
type Mode string

const (
	ModeNote  Mode = "note"
	ModeAsk   Mode = "ask"
	ModeAgent Mode = "agent"
)

// DefaultMode is used when a user has no mode configured (§4.8).
const DefaultMode = ModeNote
