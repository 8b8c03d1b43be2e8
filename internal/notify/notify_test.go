package notify

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeliversToAllSubscribers(t *testing.T) {
	n := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	var a, b []Record
	n.Subscribe(func(r Record) { a = append(a, r) })
	unsubB := n.Subscribe(func(r Record) { b = append(b, r) })

	n.Error("Engine crashed", "exit code 7", true)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, KindError, a[0].Kind)
	assert.Equal(t, "Engine crashed", a[0].Title)
	assert.True(t, a[0].Persistent)
	assert.False(t, a[0].At.IsZero(), "Push stamps the record")

	unsubB()
	n.Warn("Engine not responding", "no traffic", false)
	assert.Len(t, a, 2)
	assert.Len(t, b, 1, "unsubscribed handlers see nothing")
	assert.Equal(t, KindWarning, a[1].Kind)
}

func TestPushKeepsExplicitTimestamp(t *testing.T) {
	n := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	var got []Record
	n.Subscribe(func(r Record) { got = append(got, r) })

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.Push(Record{Kind: KindInfo, Title: "hello", At: at})
	require.Len(t, got, 1)
	assert.Equal(t, at, got[0].At)
}

func TestNotificationsAreAlwaysLogged(t *testing.T) {
	var buf bytes.Buffer
	n := New(slog.New(slog.NewTextHandler(&buf, nil)))

	n.Error("Engine crashed", "exit code 7", true)
	assert.Contains(t, buf.String(), "Engine crashed")
	assert.Contains(t, buf.String(), "level=ERROR")
}
