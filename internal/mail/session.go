package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"

	"github.com/pmbstyle/universal-email-mcp-server/internal/config"
	"github.com/pmbstyle/universal-email-mcp-server/internal/logging"
)

const (
	dialTimeout  = 30 * time.Second
	closeTimeout = 5 * time.Second
)

// Session bundles the IMAP and SMTP connections for one account. Both
// sides connect lazily on first use and stay open until Close. A mutex
// serializes all protocol access; IMAP connections carry per-command
// state (the selected mailbox) that must not interleave.
type Session struct {
	mu       sync.Mutex
	account  config.Account
	imap     *client.Client
	smtp     *smtp.Client
	smtpConn net.Conn
	logger   *slog.Logger
}

// Factory builds a session for an account. Tools depend on this rather
// than constructing sessions directly so tests can substitute fakes.
type Factory func(account config.Account) *Session

// NewSession creates a disconnected session for the given account.
func NewSession(account config.Account, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		account: account,
		logger:  logger.With(logging.Account(account.AccountName)),
	}
}

// connectIncoming establishes the IMAP connection if needed.
// Caller must hold s.mu.
func (s *Session) connectIncoming() (*client.Client, error) {
	if s.imap != nil {
		return s.imap, nil
	}

	incoming := s.account.Incoming
	addr := net.JoinHostPort(incoming.Host, strconv.Itoa(incoming.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	tlsConfig := &tls.Config{
		ServerName:         incoming.Host,
		InsecureSkipVerify: !incoming.VerifySSL,
	}
	if !incoming.VerifySSL {
		s.logger.Warn("TLS verification disabled for IMAP", slog.String("host", incoming.Host))
	}

	var c *client.Client
	var err error
	if incoming.UseSSL {
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	c.Timeout = dialTimeout

	if !incoming.UseSSL {
		if ok, _ := c.SupportStartTLS(); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Logout()
				return nil, fmt.Errorf("STARTTLS failed for %s: %w", addr, err)
			}
		} else {
			s.logger.Warn("IMAP server does not offer STARTTLS, continuing in cleartext",
				slog.String("host", incoming.Host))
		}
	}

	if err := c.Login(incoming.UserName, incoming.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed for %s: %w", logging.AnonymizeEmail(incoming.UserName), err)
	}

	s.imap = c
	return c, nil
}

// connectOutgoing establishes the SMTP connection if needed. With
// use_ssl the connection is implicit TLS from the first byte; without
// it the session starts in cleartext and upgrades with STARTTLS when
// the server advertises it, continuing in cleartext otherwise.
// Caller must hold s.mu.
func (s *Session) connectOutgoing() (*smtp.Client, error) {
	if s.smtp != nil {
		return s.smtp, nil
	}

	outgoing := s.account.Outgoing
	addr := net.JoinHostPort(outgoing.Host, strconv.Itoa(outgoing.Port))
	tlsConfig := &tls.Config{
		ServerName:         outgoing.Host,
		InsecureSkipVerify: !outgoing.VerifySSL,
	}
	if !outgoing.VerifySSL {
		s.logger.Warn("TLS verification disabled for SMTP", slog.String("host", outgoing.Host))
	}

	var conn net.Conn
	var err error
	if outgoing.UseSSL {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, tlsConfig)
	} else {
		conn, err = net.DialTimeout("tcp", addr, dialTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}

	// Bound the whole handshake; a server that stalls mid-greeting must
	// not hang the session.
	conn.SetDeadline(time.Now().Add(dialTimeout))

	c, err := smtp.NewClient(conn, outgoing.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP handshake failed for %s: %w", addr, err)
	}
	if !outgoing.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS failed for %s: %w", addr, err)
			}
		} else {
			s.logger.Warn("SMTP server does not offer STARTTLS, continuing in cleartext",
				slog.String("host", outgoing.Host))
		}
	}

	auth := smtp.PlainAuth("", outgoing.UserName, outgoing.Password, outgoing.Host)
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("SMTP login failed for %s: %w", logging.AnonymizeEmail(outgoing.UserName), err)
	}

	conn.SetDeadline(time.Time{})
	s.smtp = c
	s.smtpConn = conn
	return c, nil
}

// smtpDeadline arms a deadline covering the next SMTP exchange.
// A zero duration clears it. Caller must hold s.mu.
func (s *Session) smtpDeadline(d time.Duration) {
	if s.smtpConn == nil {
		return
	}
	if d == 0 {
		s.smtpConn.SetDeadline(time.Time{})
		return
	}
	s.smtpConn.SetDeadline(time.Now().Add(d))
}

// Close releases both connections. Errors from the remote side during
// teardown are logged and swallowed; the session is unusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.imap != nil {
		if err := s.imap.Logout(); err != nil {
			s.logger.Debug("IMAP logout failed", logging.Err(err))
		}
		s.imap = nil
	}
	if s.smtp != nil {
		s.smtpDeadline(closeTimeout)
		if err := s.smtp.Quit(); err != nil {
			s.logger.Debug("SMTP quit failed", logging.Err(err))
		}
		s.smtp = nil
		s.smtpConn = nil
	}
	return nil
}

// ListMailboxes returns the account's mailbox names, sorted.
func (s *Session) ListMailboxes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectIncoming()
	if err != nil {
		return nil, err
	}

	infos := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", infos)
	}()

	var names []string
	for info := range infos {
		names = append(names, info.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

func buildSearchCriteria(opts ListOptions) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if opts.UnreadOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if opts.SubjectFilter != "" || opts.SenderFilter != "" {
		criteria.Header = make(textproto.MIMEHeader)
		if opts.SubjectFilter != "" {
			criteria.Header.Add("Subject", opts.SubjectFilter)
		}
		if opts.SenderFilter != "" {
			criteria.Header.Add("From", opts.SenderFilter)
		}
	}
	if opts.Since != nil {
		criteria.Since = *opts.Since
	}
	if opts.Before != nil {
		criteria.Before = *opts.Before
	}
	return criteria
}

// ListMessages returns one page of messages matching opts, most recent
// first, along with the total match count before pagination. Messages
// that fail to parse are skipped rather than failing the page.
func (s *Session) ListMessages(ctx context.Context, opts ListOptions) ([]Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectIncoming()
	if err != nil {
		return nil, 0, err
	}

	if _, err := c.Select(opts.Mailbox, false); err != nil {
		return nil, 0, fmt.Errorf("failed to select mailbox %s: %w", opts.Mailbox, err)
	}

	uids, err := c.UidSearch(buildSearchCriteria(opts))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search messages: %w", err)
	}

	pageUIDs, total := paginateUIDs(uids, opts.Page, opts.PageSize)
	if len(pageUIDs) == 0 {
		return []Message{}, total, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(pageUIDs...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, fetched)
	}()

	messages := []Message{}
	for msg := range fetched {
		parsed, err := parseMessage(msg, section)
		if err != nil {
			s.logger.Warn("skipping unparseable message",
				slog.Uint64("uid", uint64(msg.Uid)),
				logging.Err(err))
			continue
		}
		messages = append(messages, *parsed)
	}
	if err := <-done; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Fetch responses arrive in mailbox order; restore newest-first.
	sort.Slice(messages, func(i, j int) bool {
		a, _ := strconv.ParseUint(messages[i].UID, 10, 32)
		b, _ := strconv.ParseUint(messages[j].UID, 10, 32)
		return a > b
	})

	return messages, total, nil
}

// GetMessage fetches a single message by UID. A UID with no matching
// message yields ErrMessageNotFound.
func (s *Session) GetMessage(ctx context.Context, mailbox, uid string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectIncoming()
	if err != nil {
		return nil, err
	}

	if _, err := c.Select(mailbox, false); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
	}

	seqSet, err := uidSeqSet(uid)
	if err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	fetched := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, fetched)
	}()

	msg := <-fetched
	if msg == nil {
		<-done
		return nil, fmt.Errorf("%w: uid %s in %s", ErrMessageNotFound, uid, mailbox)
	}
	// Drain in case the server returned more than one response.
	for range fetched {
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	return parseMessage(msg, section)
}

// SetReadState adds or removes the \Seen flag on a message. The silent
// store variant is used so the server does not echo the updated flags.
func (s *Session) SetReadState(ctx context.Context, mailbox, uid string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.connectIncoming()
	if err != nil {
		return err
	}

	if _, err := c.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
	}

	seqSet, err := uidSeqSet(uid)
	if err != nil {
		return err
	}

	item := flagsStoreItem(read)
	flags := []interface{}{imap.SeenFlag}

	if err := c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to update message flags: %w", err)
	}
	return nil
}

// Send builds and transmits a message. The SMTP envelope covers the
// union of recipients, cc, and bcc; the message headers carry To and Cc
// but never Bcc.
func (s *Session) Send(ctx context.Context, recipients, cc, bcc []string, subject, body string, isHTML bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.buildMessage(recipients, cc, bcc, subject, body, isHTML)
	if err != nil {
		return err
	}

	c, err := s.connectOutgoing()
	if err != nil {
		return err
	}

	s.smtpDeadline(dialTimeout)
	defer s.smtpDeadline(0)

	if err := c.Mail(s.account.EmailAddress); err != nil {
		return fmt.Errorf("SMTP MAIL failed: %w", err)
	}
	for _, rcpt := range envelopeRecipients(recipients, cc, bcc) {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT failed for %s: %w", logging.AnonymizeEmail(rcpt), err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	s.logger.Info("message sent",
		logging.Operation("mail.send"),
		slog.Int("recipients", len(recipients)),
		slog.Int("cc", len(cc)),
		slog.Int("bcc", len(bcc)))
	return nil
}

// buildMessage renders the RFC 5322 message. A message with no cc and no
// bcc is a single inline part; any copy recipient turns it into a
// multipart container. Bcc addresses only influence that choice, they
// are handled at the envelope level and never appear in a header.
func (s *Session) buildMessage(recipients, cc, bcc []string, subject, body string, isHTML bool) ([]byte, error) {
	var h gomail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*gomail.Address{{
		Name:    s.account.FullName,
		Address: s.account.EmailAddress,
	}})
	h.SetAddressList("To", toAddressList(recipients))
	if len(cc) > 0 {
		h.SetAddressList("Cc", toAddressList(cc))
	}

	contentType := "text/plain"
	if isHTML {
		contentType = "text/html"
	}
	params := map[string]string{"charset": "utf-8"}

	var buf bytes.Buffer
	if len(cc) == 0 && len(bcc) == 0 {
		h.SetContentType(contentType, params)
		w, err := gomail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("failed to create message writer: %w", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish message: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	var inline gomail.InlineHeader
	inline.SetContentType(contentType, params)
	part, err := mw.CreateSingleInline(inline)
	if err != nil {
		mw.Close()
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write([]byte(body)); err != nil {
		part.Close()
		mw.Close()
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	part.Close()
	mw.Close()

	return buf.Bytes(), nil
}

func toAddressList(addrs []string) []*gomail.Address {
	list := make([]*gomail.Address, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, &gomail.Address{Address: a})
	}
	return list
}

// envelopeRecipients returns the deduplicated union of all recipient
// lists, preserving first-seen order.
func envelopeRecipients(recipients, cc, bcc []string) []string {
	seen := make(map[string]bool)
	var all []string
	for _, group := range [][]string{recipients, cc, bcc} {
		for _, addr := range group {
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			all = append(all, addr)
		}
	}
	return all
}

// paginateUIDs orders search results newest first and slices out the
// requested 1-based page. The total match count is returned so callers
// can report it regardless of which page was requested.
func paginateUIDs(uids []uint32, page, pageSize int) ([]uint32, int) {
	total := len(uids)
	if total == 0 {
		return nil, 0
	}

	// UIDs come back ascending; newest first means walking them reversed.
	reversed := make([]uint32, total)
	for i, uid := range uids {
		reversed[total-1-i] = uid
	}

	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return reversed[start:end], total
}

// flagsStoreItem returns the silent store item that adds the \Seen flag
// for read and removes it otherwise.
func flagsStoreItem(read bool) imap.StoreItem {
	op := imap.FlagsOp(imap.AddFlags)
	if !read {
		op = imap.FlagsOp(imap.RemoveFlags)
	}
	return imap.FormatFlagsOp(op, true)
}

func uidSeqSet(uid string) (*imap.SeqSet, error) {
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message uid %q: %w", uid, err)
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(n))
	return seqSet, nil
}
