package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name   string
	alerts []Alert
	err    error
}

func (r *recordingSender) Deliver(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyCarriesEventToSenders(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "group_halted", "group halted", "grp-1 unwind failed"))

	require.Len(t, s.alerts, 1)
	assert.Equal(t, "group_halted", s.alerts[0].Event)
	assert.Equal(t, "group halted", s.alerts[0].Title)
	assert.Equal(t, "grp-1 unwind failed", s.alerts[0].Body)
}

func TestNotifyFiltersByEventAllowlist(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"daily_loss_limit"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "group_halted", "group halted", "grp-1"))
	assert.Empty(t, s.alerts)

	require.NoError(t, n.Notify(context.Background(), "daily_loss_limit", "loss limit reached", "pnl -120"))
	require.Len(t, s.alerts, 1)
	assert.Equal(t, "daily_loss_limit", s.alerts[0].Event)
}

func TestNotifyAllBypassesAllowlist(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"daily_loss_limit"}, testLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "group_halted", "group halted", "grp-1"))
	require.Len(t, s.alerts, 1)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("socket closed")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), "group_halted", "group halted", "grp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	require.Len(t, good.alerts, 1)
}

func TestTelegramSenderRendersEventTag(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s := NewTelegramSender("tok", "chat-9")
	s.apiBase = srv.URL

	require.NoError(t, s.Deliver(context.Background(), Alert{
		Event: "group_halted",
		Title: "group halted",
		Body:  "grp-1 unwind failed",
	}))

	assert.Equal(t, "chat-9", got["chat_id"])
	assert.Equal(t, "*[group_halted] group halted*\ngrp-1 unwind failed", got["text"])
}

func TestDiscordSenderReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	s := NewDiscordSender(srv.URL)
	err := s.Deliver(context.Background(), Alert{Event: "daily_loss_limit", Title: "loss limit reached"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
