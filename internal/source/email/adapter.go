package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/source"
)

// Adapter implements source.MailSource over IMAP. One Adapter serves one
// run: the session is opened on first use, the mailbox is selected once,
// and Close logs out. A session that fails a command is dropped and the
// next call dials a fresh one.
type Adapter struct {
	client  *IMAPClient
	mailbox string
	logger  *slog.Logger

	mu      sync.Mutex
	session *imapclient.Client
}

// NewAdapter creates an IMAP mail source for the given account.
func NewAdapter(cfg model.IMAPConfig, creds source.Credentials, logger *slog.Logger) *Adapter {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: NewIMAPClient(
			cfg.Host, cfg.Port, creds.Username, creds.Password, cfg.TLS,
		),
		mailbox: mailbox,
		logger:  logger.With("source", source.SourceTypeIMAP, "username", creds.Username),
	}
}

// NewFactory returns a source.Factory that builds IMAP adapters sharing
// the server settings in cfg.
func NewFactory(cfg model.IMAPConfig, logger *slog.Logger) source.Factory {
	return func(_ context.Context, creds source.Credentials) (source.MailSource, error) {
		if creds.Username == "" || creds.Password == "" {
			return nil, &source.AuthError{
				SourceType: source.SourceTypeIMAP,
				Message:    "username and password are required",
			}
		}
		return NewAdapter(cfg, creds, logger), nil
	}
}

// ValidateConnection logs in and out without touching the mailbox.
func (a *Adapter) ValidateConnection(ctx context.Context) error {
	c, err := a.client.Connect(ctx)
	if err != nil {
		return err
	}
	_ = c.Logout().Wait()
	return nil
}

// ListCandidateIDs searches the mailbox and returns message UIDs as
// decimal strings in ascending order.
func (a *Adapter) ListCandidateIDs(
	ctx context.Context, q source.Query,
) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.connect(ctx, q.Mailbox)
	if err != nil {
		return nil, err
	}

	uids, err := SearchUIDs(c, q)
	if err != nil {
		a.dropSession()
		return nil, err
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchItem fetches one message by UID and flattens it to plain text.
func (a *Adapter) FetchItem(
	ctx context.Context, id string,
) (source.Item, error) {
	uid, err := parseUID(id)
	if err != nil {
		return source.Item{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	msg, err := a.fetch(ctx, uid)
	if err != nil {
		return source.Item{}, fmt.Errorf("fetching message %s: %w", id, err)
	}

	text := msg.TextBody
	if strings.TrimSpace(text) == "" {
		text = stripHTML(msg.HTMLBody)
	}

	return source.Item{
		ID:        id,
		Text:      text,
		Subject:   msg.Envelope.Subject,
		Sender:    msg.Envelope.From,
		Timestamp: messageTime(msg.Envelope),
	}, nil
}

// Close logs out of the open session, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil
	}
	err := a.session.Logout().Wait()
	_ = a.session.Close()
	a.session = nil
	return err
}

// fetch fetches one message, redialing once if the session fails. An
// unreachable server yields source.ErrUnavailable. Callers must hold a.mu.
func (a *Adapter) fetch(ctx context.Context, uid uint32) (*ParsedMessage, error) {
	for attempt := 0; ; attempt++ {
		c, err := a.connect(ctx, "")
		if err != nil {
			if source.IsAuthError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", source.ErrUnavailable, err)
		}

		msg, err := FetchMessage(c, uid)
		if err == nil || errors.Is(err, ErrMessageNotFound) {
			return msg, err
		}

		a.dropSession()
		if attempt > 0 || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", source.ErrUnavailable, err)
		}
		a.logger.Warn("imap session failed, reconnecting", "uid", uid, "error", err)
	}
}

// dropSession discards a session that failed a command.
// Callers must hold a.mu.
func (a *Adapter) dropSession() {
	if a.session == nil {
		return
	}
	_ = a.session.Close()
	a.session = nil
}

// connect returns the open session, dialing and selecting the mailbox on
// first use. Callers must hold a.mu.
func (a *Adapter) connect(
	ctx context.Context, mailbox string,
) (*imapclient.Client, error) {
	if mailbox != "" && mailbox != a.mailbox {
		if a.session != nil {
			_ = a.session.Logout().Wait()
			a.dropSession()
		}
		a.mailbox = mailbox
	}
	if a.session != nil {
		return a.session, nil
	}

	c, err := a.client.Connect(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := c.Select(a.mailbox, nil).Wait(); err != nil {
		_ = c.Logout().Wait()
		return nil, fmt.Errorf("selecting %s: %w", a.mailbox, err)
	}

	a.logger.Debug("imap session opened", "mailbox", a.mailbox)
	a.session = c
	return c, nil
}

// parseUID converts a string item ID to a uint32 IMAP UID.
func parseUID(sourceItemID string) (uint32, error) {
	uid, err := strconv.ParseUint(sourceItemID, 10, 32)
	if err != nil {
		return 0, fmt.Errorf(
			"invalid email UID %q: %w", sourceItemID, err,
		)
	}
	return uint32(uid), nil
}

// htmlTagPattern matches HTML tags for stripping.
var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML reduces an HTML body to readable text for classification.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}
