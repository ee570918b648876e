package channels

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kafgate/kafgate/internal/channels/email"
	"github.com/kafgate/kafgate/internal/ids"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/store"
)

const (
	emailSeenIDCapacity = 10_000
	emailMinIntervalS   = 30
	emailMaxIntervalS   = 3600
)

// threadState is what Send needs to reconstruct a reply for a thread it has
// no other record of: the subject to prefix with "Re: " and the References
// chain and message id to thread off of.
type threadState struct {
	Subject       string
	References    []string
	LastMessageID string
}

// Email polls an email.Provider on an interval and feeds parsed envelopes
// into the bus. Send threads outbound replies against the last envelope
// seen for the message's ConversationKey (its thread root), addressed to
// UserKey since a thread root is not itself a deliverable address.
type Email struct {
	BaseAdapter
	Provider     email.Provider
	Folder       string
	IntervalS    int
	Store        *store.Store

	mu       sync.Mutex
	seen     map[string]struct{}
	seenFIFO []string
	threads  map[string]threadState
}

// NewEmail builds an Email adapter registered under channelID. intervalS is
// clamped to [30, 3600].
func NewEmail(channelID string, provider email.Provider, folder string, intervalS int, st *store.Store) *Email {
	if intervalS < emailMinIntervalS {
		intervalS = emailMinIntervalS
	}
	if intervalS > emailMaxIntervalS {
		intervalS = emailMaxIntervalS
	}
	return &Email{
		BaseAdapter: BaseAdapter{ID: channelID},
		Provider:    provider,
		Folder:      folder,
		IntervalS:   intervalS,
		Store:       st,
		seen:        map[string]struct{}{},
		threads:     map[string]threadState{},
	}
}

// Run drives the polling loop until ctx is cancelled. Stop is best-effort
// within one poll interval: Run checks ctx between ticks, not mid-fetch.
func (e *Email) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(e.IntervalS) * time.Second)
	defer ticker.Stop()

	e.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

func (e *Email) poll(ctx context.Context) {
	cursor, err := e.Store.GetCursor(e.ID)
	if err != nil {
		log.Printf("email[%s]: get cursor: %v", e.ID, err)
		return
	}

	envelopes, err := e.Provider.FetchMessages(ctx, e.Folder, ids.FromMs(cursor.LastPollTimeMs), 0)
	if err != nil {
		log.Printf("email[%s]: fetch messages: %v", e.ID, err)
		return
	}

	var lastMessageID string
	for _, env := range envelopes {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("email[%s]: panic handling envelope %s: %v", e.ID, env.MessageID, r)
				}
			}()
			if e.handleEnvelope(ctx, env) {
				lastMessageID = env.OutgoingMessageID()
			}
		}()
	}

	if lastMessageID == "" {
		lastMessageID = cursor.LastMessageID
	}
	if err := e.Store.SaveCursor(e.ID, ids.NowMs(), lastMessageID); err != nil {
		log.Printf("email[%s]: save cursor: %v", e.ID, err)
	}
}

func (e *Email) handleEnvelope(ctx context.Context, env email.Envelope) bool {
	id := env.OutgoingMessageID()
	if e.isDuplicate(id) {
		return false
	}

	msg := message.NewInbound(e.ID, env.UserKey(), env.ThreadRoot(), id, message.TypeText, env.Date)
	msg.Text = env.TextBody
	msg.Metadata["subject"] = env.Subject
	for _, a := range env.Attachments {
		msg.Attachments = append(msg.Attachments, message.Attachment{
			Type:      message.AttachmentTypeFromMIME(a.MimeType),
			Filename:  a.Filename,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
		})
	}

	e.recordThread(env)
	e.Deliver(ctx, msg)
	return true
}

// recordThread updates the thread-root state Send consults to address and
// reference a reply, keyed by the same ThreadRoot used as ConversationKey.
func (e *Email) recordThread(env email.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threads[env.ThreadRoot()] = threadState{
		Subject:       env.Subject,
		References:    append([]string{}, env.References...),
		LastMessageID: env.OutgoingMessageID(),
	}
}

// isDuplicate checks and records id against the seen-id set, halving the
// set (dropping the oldest half) once it exceeds capacity rather than
// evicting one entry at a time.
func (e *Email) isDuplicate(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[id]; ok {
		return true
	}
	e.seen[id] = struct{}{}
	e.seenFIFO = append(e.seenFIFO, id)
	if len(e.seenFIFO) > emailSeenIDCapacity {
		half := len(e.seenFIFO) / 2
		for _, old := range e.seenFIFO[:half] {
			delete(e.seen, old)
		}
		e.seenFIFO = append([]string{}, e.seenFIFO[half:]...)
	}
	return false
}

// Send delivers an outbound reply through the bus's uniform adapter
// contract. msg.ConversationKey is the thread root, not a deliverable
// address, so the recipient is msg.UserKey; the subject and References
// chain are recovered from the last envelope seen for that thread.
func (e *Email) Send(ctx context.Context, msg *message.Outbound) error {
	if msg.UserKey == "" {
		return fmt.Errorf("email: outbound message has no UserKey to address")
	}

	e.mu.Lock()
	state, ok := e.threads[msg.ConversationKey]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("email: no known thread for conversation %q", msg.ConversationKey)
	}

	replyToMessageID := msg.ReplyToMessageID
	if replyToMessageID == "" {
		replyToMessageID = state.LastMessageID
	}
	return e.SendReply(ctx, []string{msg.UserKey}, state.Subject, msg.Text, state.References, replyToMessageID)
}

// SendReply sends a reply through the provider using the frozen reply
// rules: in_reply_to derived from replyToMessageID, subject auto-prefixed
// with "Re: ", and references extended with the id being replied to.
func (e *Email) SendReply(ctx context.Context, to []string, subject, text string, priorReferences []string, replyToMessageID string) error {
	params := email.ReplySendParams(to, subject, text, priorReferences, replyToMessageID)
	return e.Provider.SendMessage(ctx, params)
}
