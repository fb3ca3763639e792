package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/oneboxhq/onebox/config"
)

// imapConn is the slice of the IMAP client the session needs. Keeping
// it narrow lets tests drive the session with a fake server.
type imapConn interface {
	Select(name string, readOnly bool) (*goimap.MailboxStatus, error)
	Noop() error
	Idle(stop <-chan struct{}, opts *client.IdleOptions) error
	SetUpdates(ch chan<- client.Update)
	UidSearch(criteria *goimap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *goimap.SeqSet, items []goimap.FetchItem, ch chan *goimap.Message) error
	Logout() error
}

type dialFunc func(cfg *config.IMAPConfig) (imapConn, error)

type goImapConn struct {
	c *client.Client
}

func (g *goImapConn) Select(name string, readOnly bool) (*goimap.MailboxStatus, error) {
	return g.c.Select(name, readOnly)
}

func (g *goImapConn) Noop() error {
	return g.c.Noop()
}

func (g *goImapConn) Idle(stop <-chan struct{}, opts *client.IdleOptions) error {
	return g.c.Idle(stop, opts)
}

func (g *goImapConn) SetUpdates(ch chan<- client.Update) {
	g.c.Updates = ch
}

func (g *goImapConn) UidSearch(criteria *goimap.SearchCriteria) ([]uint32, error) {
	return g.c.UidSearch(criteria)
}

func (g *goImapConn) UidFetch(seqset *goimap.SeqSet, items []goimap.FetchItem, ch chan *goimap.Message) error {
	return g.c.UidFetch(seqset, items, ch)
}

func (g *goImapConn) Logout() error {
	return g.c.Logout()
}

func dialMailbox(cfg *config.IMAPConfig) (imapConn, error) {
	serverAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName: cfg.Host,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.Timeout = 30 * time.Second
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login as %s: %w", cfg.Username, err)
	}
	c.Timeout = 0

	return &goImapConn{c: c}, nil
}
