package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/source"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"paragraphs", "<p>Hello</p><p>World</p>", "Hello\nWorld"},
		{"entities", "Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"breaks collapse", "a<br><br><br><br>b", "a\n\nb"},
		{"attributes", `<a href="x">link</a>`, "link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(tt.in))
		})
	}
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("4242")
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), uid)

	_, err = parseUID("abc")
	require.Error(t, err)

	_, err = parseUID("99999999999")
	require.Error(t, err)
}

func TestParseMIMEBodyMultipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: Recruiting <jobs@acme.test>",
		"To: me@example.com",
		"Subject: Your application",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUND"`,
		"",
		"--BOUND",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Thank you for applying to Acme.",
		"--BOUND",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Thank you for applying to Acme.</p>",
		"--BOUND",
		`Content-Type: application/pdf`,
		`Content-Disposition: attachment; filename="offer.pdf"`,
		"",
		"PDFDATA",
		"--BOUND--",
		"",
	}, "\r\n")

	text, html := parseMIMEBody([]byte(raw))
	assert.Contains(t, text, "Thank you for applying to Acme.")
	assert.NotContains(t, text, "PDFDATA")
	assert.Contains(t, html, "<p>Thank you for applying")
}

func TestParseMIMEBodyFallsBackToRaw(t *testing.T) {
	text, html := parseMIMEBody([]byte("not a mime message"))
	assert.NotEmpty(t, text)
	assert.Empty(t, html)
}

func TestMessageTime(t *testing.T) {
	d := time.Date(2026, 5, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, d.UTC(), messageTime(Envelope{Date: d}))
	assert.False(t, messageTime(Envelope{}).IsZero())
}

func TestFactoryRequiresCredentials(t *testing.T) {
	factory := NewFactory(model.IMAPConfig{Host: "localhost", Port: "993"}, nil)

	_, err := factory(context.Background(), source.Credentials{Username: "me"})
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))

	src, err := factory(context.Background(), source.Credentials{
		Username: "me", Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "INBOX", src.(*Adapter).mailbox)
}
