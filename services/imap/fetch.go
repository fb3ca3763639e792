package imap

import (
	"context"
	"log"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"

	onebox_errors "github.com/oneboxhq/onebox/errors"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/tracing"
)

// FetchSince retrieves every message in the working folder received at
// or after cutoff. The session must not be in push mode.
func (s *Session) FetchSince(ctx context.Context, cutoff time.Time) ([]interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.FetchSince")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)
	tracing.TagFolder(span, s.cfg.Folder)
	span.LogKV("cutoff", cutoff.UTC().Format(time.RFC3339))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, onebox_errors.ErrSessionClosed
	}
	if s.conn == nil || s.state != stateConnected {
		tracing.TraceErr(span, onebox_errors.ErrNotConnected)
		return nil, onebox_errors.ErrNotConnected
	}

	if _, err := s.conn.Select(s.cfg.Folder, true); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	criteria := goimap.NewSearchCriteria()
	criteria.Since = cutoff

	uids, err := s.conn.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("matched", len(uids))

	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uids...)

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchUid,
		goimap.FetchFlags,
		section.FetchItem(),
	}

	messages := make(chan *goimap.Message, 32)
	fetchDone := make(chan error, 1)
	conn := s.conn
	go func() {
		fetchDone <- conn.UidFetch(seqSet, items, messages)
	}()

	var results []interfaces.RawMessage
	for msg := range messages {
		raw, ok := s.decodeMessage(msg, section)
		if !ok {
			log.Printf("[%s][%s] Skipping undecodable message uid=%d", s.cfg.Username, s.cfg.Folder, msg.Uid)
			continue
		}
		results = append(results, raw)
	}

	if err := <-fetchDone; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	log.Printf("[%s][%s] Fetched %d message(s) since %s", s.cfg.Username, s.cfg.Folder, len(results), cutoff.UTC().Format(time.RFC3339))
	return results, nil
}

// decodeMessage builds a RawMessage from the fetched body, preferring
// the MIME-decoded form and falling back to the IMAP envelope.
func (s *Session) decodeMessage(msg *goimap.Message, section *goimap.BodySectionName) (interfaces.RawMessage, bool) {
	raw := interfaces.RawMessage{UID: msg.Uid}

	if body := msg.GetBody(section); body != nil {
		env, err := enmime.ReadEnvelope(body)
		if err == nil {
			raw.Subject = env.GetHeader("Subject")
			raw.Sender = env.GetHeader("From")
			raw.Recipient = env.GetHeader("To")
			raw.Date = env.GetHeader("Date")
			raw.Content = env.Text
			return raw, true
		}
		log.Printf("[%s][%s] MIME parse failed for uid=%d: %v", s.cfg.Username, s.cfg.Folder, msg.Uid, err)
	}

	if msg.Envelope == nil {
		return raw, false
	}

	raw.Subject = msg.Envelope.Subject
	raw.Sender = formatAddresses(msg.Envelope.From)
	raw.Recipient = formatAddresses(msg.Envelope.To)
	if !msg.Envelope.Date.IsZero() {
		raw.Date = msg.Envelope.Date.Format(time.RFC1123Z)
	}
	return raw, true
}

func formatAddresses(addresses []*goimap.Address) string {
	parts := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if addr == nil {
			continue
		}
		parts = append(parts, addr.Address())
	}
	return strings.Join(parts, ", ")
}
