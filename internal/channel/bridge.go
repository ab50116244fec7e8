package channel

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/vellumhq/vellum/internal/core"
)

// internTable assigns a stable int64 identity to an opaque provider string
// (a Telegram chat/user/message ID, an HTTP request UUID, ...), so the
// int64-keyed core.OutboundPort/core.IncomingMessage contracts can address
// entities that a given Channel names with strings. Numeric strings keep
// their natural value (the common Telegram case); anything else is hashed,
// with the reverse map resolving collisions against a different string.
type internTable struct {
	mu  sync.RWMutex
	fwd map[string]int64
	rev map[int64]string
}

func newInternTable() *internTable {
	return &internTable{fwd: make(map[string]int64), rev: make(map[int64]string)}
}

func (t *internTable) intern(s string) int64 {
	t.mu.RLock()
	if id, ok := t.fwd[s]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.fwd[s]; ok {
		return id
	}

	id := numericOrHash(s)
	for {
		if existing, ok := t.rev[id]; !ok || existing == s {
			break
		}
		id++
	}
	t.fwd[s] = id
	t.rev[id] = s
	return id
}

func (t *internTable) lookup(id int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.rev[id]
	return s, ok
}

func numericOrHash(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// Bridge adapts a Channel's string-addressed wire protocol to the
// int64-addressed core.OutboundPort/core.IncomingMessage contracts the
// router (C8) and mode services (C9/C10/C11) are built against, so those
// packages never need to know which chat platform is attached.
type Bridge struct {
	ch       Channel
	chatIDs  *internTable
	userIDs  *internTable
	msgIDs   *internTable
}

// NewBridge wraps ch so it can be used as a core.OutboundPort and so its
// inbound Messages can be converted to core.IncomingMessage.
func NewBridge(ch Channel) *Bridge {
	return &Bridge{
		ch:      ch,
		chatIDs: newInternTable(),
		userIDs: newInternTable(),
		msgIDs:  newInternTable(),
	}
}

var _ core.OutboundPort = (*Bridge)(nil)

// ToIncoming converts a normalized chat Message into the router's DTO,
// interning every provider-specific ID the reply path will later need.
func (b *Bridge) ToIncoming(msg *Message) core.IncomingMessage {
	contentType := core.ContentText
	if len(msg.Attachments) > 0 {
		switch msg.Attachments[0].Type {
		case AttachmentImage:
			contentType = core.ContentPhoto
		case AttachmentVoice:
			contentType = core.ContentVoice
		}
	}

	return core.IncomingMessage{
		MessageID:   b.msgIDs.intern(msg.ID),
		ChatID:      b.chatIDs.intern(msg.ChatID),
		UserID:      b.userIDs.intern(msg.UserID),
		Text:        msg.Content,
		ContentType: contentType,
	}
}

func (b *Bridge) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	chatStr, ok := b.chatIDs.lookup(chatID)
	if !ok {
		return 0, fmt.Errorf("channel bridge: unknown chat %d", chatID)
	}
	msgStr, err := b.ch.SendMessage(ctx, chatStr, text)
	if err != nil {
		return 0, err
	}
	return b.msgIDs.intern(msgStr), nil
}

func (b *Bridge) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	chatStr, ok := b.chatIDs.lookup(chatID)
	if !ok {
		return fmt.Errorf("channel bridge: unknown chat %d", chatID)
	}
	msgStr, ok := b.msgIDs.lookup(messageID)
	if !ok {
		return fmt.Errorf("channel bridge: unknown message %d", messageID)
	}
	return b.ch.EditMessage(ctx, chatStr, msgStr, text)
}

// ReplyTo has no native quoting concept at the Channel level, so it
// degrades to a plain SendMessage to the same chat.
func (b *Bridge) ReplyTo(ctx context.Context, chatID, _ int64, text string) (int64, error) {
	return b.SendMessage(ctx, chatID, text)
}

// ChatID interns a raw provider chat ID the same way an inbound Message
// would, so callers outside the normal receive path (e.g. the pairing
// welcome flow) can address a chat before the router has seen it.
func (b *Bridge) ChatID(raw string) int64 {
	return b.chatIDs.intern(raw)
}
