package services

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeplus_app/internal/config"
)

func TestEmailService_SendEmail(t *testing.T) {
	cfg := config.SMTP{Host: "smtp.example.com", Port: "587", User: "no-reply@timeplus.app", Password: "pw"}

	t.Run("not configured", func(t *testing.T) {
		s := NewEmailService(config.SMTP{})
		assert.False(t, s.Configured())
		assert.ErrorIs(t, s.SendEmail([]string{"ana@example.com"}, "Hi", "Body"), ErrSMTPNotConfigured)
	})

	t.Run("builds message and falls back to user as sender", func(t *testing.T) {
		s := NewEmailService(cfg)
		var (
			gotAddr string
			gotFrom string
			gotTo   []string
			gotMsg  string
		)
		s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
			return nil
		}

		err := s.SendEmail([]string{"ana@example.com"}, "Sessão confirmada", "Até logo")
		require.NoError(t, err)
		assert.Equal(t, "smtp.example.com:587", gotAddr)
		assert.Equal(t, "no-reply@timeplus.app", gotFrom)
		assert.Equal(t, []string{"ana@example.com"}, gotTo)
		assert.Contains(t, gotMsg, "To: ana@example.com\r\n")
		assert.Contains(t, gotMsg, "Subject: =?utf-8?q?")
		assert.Contains(t, gotMsg, "Até logo")
	})

	t.Run("wraps transport error", func(t *testing.T) {
		s := NewEmailService(cfg)
		s.send = func(string, smtp.Auth, string, []string, []byte) error {
			return errors.New("connection refused")
		}
		err := s.SendEmail([]string{"ana@example.com"}, "Hi", "Body")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send email")
	})
}
