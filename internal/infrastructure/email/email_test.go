package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

var profile = student.ReminderProfile{
	StudentID:     "s-1",
	Name:          "Ada <Lovelace>",
	Email:         "ada@example.com",
	Handle:        "ada",
	CurrentRating: 0,
	MaxRating:     1650,
}

func TestRenderReminder(t *testing.T) {
	body, err := RenderReminder(profile)
	require.NoError(t, err)

	assert.Contains(t, body, "Hi Ada &lt;Lovelace&gt;!")
	assert.Contains(t, body, "<strong>Current Rating:</strong> Unrated")
	assert.Contains(t, body, "<strong>Max Rating:</strong> 1650")
	assert.Contains(t, body, "<strong>Codeforces Handle:</strong> ada")
	assert.Contains(t, body, `href="https://codeforces.com/contests"`)
}

type captured struct {
	msg      *mail.Msg
	raw      string
	deadline time.Time
}

func newTestSender(sendErr error) (*SMTPSender, *captured) {
	c := &captured{}
	s := NewSMTPSender(SMTPConfig{
		Host: "smtp.example.com", Port: 587, Username: "bot", Password: "pw", From: "bot@example.com",
		Timeout: 5 * time.Second,
	}, nil)
	s.deliver = func(ctx context.Context, msg *mail.Msg) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		c.msg, c.raw = msg, buf.String()
		c.deadline, _ = ctx.Deadline()
		return sendErr
	}
	s.now = func() time.Time { return time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC) }
	return s, c
}

func TestSMTPSender_Sends(t *testing.T) {
	s, c := newTestSender(nil)

	start := time.Now()
	ok := s.SendReminder(context.Background(), profile)
	require.True(t, ok)
	require.NotNil(t, c.msg)

	rcpts, err := c.msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, rcpts)
	assert.Equal(t, []string{ReminderSubject}, c.msg.GetGenHeader(mail.HeaderSubject))

	assert.Contains(t, c.raw, "bot@example.com")
	assert.Contains(t, c.raw, "text/html")
	assert.Contains(t, c.raw, "Unrated")

	require.False(t, c.deadline.IsZero(), "delivery must run under a deadline")
	assert.WithinDuration(t, start.Add(5*time.Second), c.deadline, time.Second)
}

func TestSMTPSender_FailureReturnsFalse(t *testing.T) {
	s, _ := newTestSender(errors.New("550 rejected"))
	assert.False(t, s.SendReminder(context.Background(), profile))
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s, c := newTestSender(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, s.SendReminder(ctx, profile))
	assert.Nil(t, c.msg)
}

func TestSMTPSender_ServerHangsUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := NewSMTPSender(SMTPConfig{
		Host: "127.0.0.1", Port: addr.Port, From: "bot@example.com", Timeout: 2 * time.Second,
	}, nil)

	start := time.Now()
	assert.False(t, s.SendReminder(context.Background(), profile))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLogSender(t *testing.T) {
	assert.True(t, NewLogSender(nil).SendReminder(context.Background(), profile))
}
