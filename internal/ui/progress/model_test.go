package progress

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent462/drove/internal/executor"
)

func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return nm, cmd
}

func TestModel_AppliesEvents(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New([]string{"web1", "web2"}, nil)
	m.now = func() time.Time { return clock }

	m, cmd := send(t, m, eventMsg{Type: executor.EventHostStarted, Host: "web1", Total: 2})
	assert.NotNil(t, cmd, "model should keep listening after an event")
	assert.Equal(t, stateRunning, m.index["web1"].Status)
	assert.Equal(t, statePending, m.index["web2"].Status)

	m, _ = send(t, m, eventMsg{Type: executor.EventAttemptFailed, Host: "web1", Command: "uptime", Attempt: 1})
	assert.Equal(t, stateRetry, m.index["web1"].Status)

	m, _ = send(t, m, eventMsg{Type: executor.EventCommandDone, Host: "web1", Command: "uptime", Index: 0, Total: 2, Attempt: 2})
	m, _ = send(t, m, eventMsg{Type: executor.EventCommandDone, Host: "web1", Command: "false", Index: 1, Total: 2, Attempt: 3, Err: errors.New("exit status 1")})
	clock = clock.Add(1500 * time.Millisecond)
	m, _ = send(t, m, eventMsg{Type: executor.EventHostDone, Host: "web1", Total: 2})

	st := m.index["web1"]
	assert.Equal(t, stateFailed, st.Status)
	assert.Equal(t, 2, st.Done)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1500*time.Millisecond, st.Finished)

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "web1", rows[0][0])
	assert.Equal(t, "failed", rows[0][1])
	assert.Equal(t, "2/2", rows[0][2])
	assert.Equal(t, "3", rows[0][3])
	assert.Equal(t, "1.5s", rows[0][5])

	view := m.View().Content
	assert.Contains(t, view, "1/2 hosts finished")
	assert.Contains(t, view, "1 with failures")
}

func TestModel_UnknownHostIsAdded(t *testing.T) {
	m := New([]string{"a"}, nil)
	m, _ = send(t, m, eventMsg{Type: executor.EventHostStarted, Host: "b", Total: 1})
	assert.Len(t, m.hosts, 2)
	assert.Len(t, m.table.Rows(), 2)
}

func TestModel_DuplicateHostsCollapse(t *testing.T) {
	m := New([]string{"a", "a", "b"}, nil)
	assert.Len(t, m.hosts, 2)
}

func TestModel_QuitKeys(t *testing.T) {
	for _, k := range []tea.KeyPressMsg{
		{Code: 'c', Mod: tea.ModCtrl},
		{Code: 'q', Text: "q"},
	} {
		t.Run(k.String(), func(t *testing.T) {
			m, cmd := send(t, New([]string{"a"}, nil), k)
			require.NotNil(t, cmd)
			assert.True(t, m.Interrupted())
			assert.IsType(t, tea.QuitMsg{}, cmd())
		})
	}
}

func TestModel_OtherKeysIgnored(t *testing.T) {
	m, cmd := send(t, New([]string{"a"}, nil), tea.KeyPressMsg{Code: 'x', Text: "x"})
	assert.Nil(t, cmd)
	assert.False(t, m.Interrupted())
}

func TestModel_QuitsWhenStreamCloses(t *testing.T) {
	events := make(chan executor.Event, 1)
	events <- executor.Event{Type: executor.EventHostStarted, Host: "a", Total: 1}
	close(events)

	m := New([]string{"a"}, events)
	msg := m.Init()()
	m, cmd := send(t, m, msg)
	assert.Equal(t, stateRunning, m.index["a"].Status)

	m, cmd = send(t, m, cmd())
	assert.True(t, m.Finished())
	assert.False(t, m.Interrupted())
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.NotContains(t, m.View().Content, "q to stop")
}

func TestModel_WindowResize(t *testing.T) {
	m, _ := send(t, New([]string{"a"}, nil), tea.WindowSizeMsg{Width: 140, Height: 30})
	cols := m.table.Columns()
	require.Len(t, cols, 6)
	total := 0
	for _, c := range cols {
		total += c.Width
	}
	assert.LessOrEqual(t, total, 140)
}

func TestFeed_DeliversAndCloses(t *testing.T) {
	f := NewFeed(4)
	f.Observe(executor.Event{Host: "a"})
	f.Close()
	f.Observe(executor.Event{Host: "late"})
	f.Close()

	var got []string
	for ev := range f.Events() {
		got = append(got, ev.Host)
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestFeed_StopReleasesBlockedObservers(t *testing.T) {
	f := NewFeed(0)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Observe(executor.Event{Host: "h"})
		}()
	}

	f.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("observers still blocked after Stop")
	}
	f.Close()
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2.0s", formatDuration(2*time.Second))
	assert.True(t, strings.HasSuffix(formatDuration(90*time.Second), "s"))
}
