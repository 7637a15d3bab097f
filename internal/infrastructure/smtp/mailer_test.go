package smtp

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/matrimony-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplate_RendersVariables(t *testing.T) {
	m := NewMailer(config.Email{SMTPHost: "localhost", SMTPPort: "1025", From: "no-reply@example.com"})
	var gotAddr string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"a@example.com"}, to)
		return nil
	}

	require.NoError(t, m.SendTemplate(context.Background(), "a@example.com", "new_interest",
		map[string]string{"user_name": "Asha", "sender_name": "Ravi"}))
	assert.Equal(t, "localhost:1025", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Notification: new_interest")
	assert.Contains(t, string(gotMsg), "sender_name: Ravi\r\nuser_name: Asha\r\n")
}
