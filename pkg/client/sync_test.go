package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAPI serves the subset of the ticket API the syncer talks to. Setting
// holdGet makes the next ticket fetch snapshot its response, signal
// getStarted, then block until holdGet is closed.
type fakeAPI struct {
	mu         sync.Mutex
	ticket     Ticket
	failNext   bool
	holdGet    chan struct{}
	getStarted chan struct{}
}

func newFakeAPI() *fakeAPI {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &fakeAPI{
		ticket: Ticket{
			ID:        "t1",
			Status:    "SUBMITTED",
			CreatedAt: created,
			UpdatedAt: created,
			Messages: []Message{
				{ID: "m1", TicketID: "t1", Role: "user", Content: "hello", CreatedAt: created},
			},
		},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tickets/t1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		snapshot := f.ticket
		hold, started := f.holdGet, f.getStarted
		f.holdGet, f.getStarted = nil, nil
		f.mu.Unlock()
		if hold != nil {
			if started != nil {
				close(started)
			}
			<-hold
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": snapshot})
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var req struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		now := time.Now()
		reply := "Got it. Can you describe the issue you're experiencing?"
		f.ticket.Messages = append(f.ticket.Messages,
			Message{ID: "m-user", TicketID: "t1", Role: "user", Content: req.Message, CreatedAt: now},
			Message{ID: "m-assistant", TicketID: "t1", Role: "assistant", Content: reply, CreatedAt: now},
		)
		writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
	})
	mux.HandleFunc("POST /api/tickets/t1/message", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failNext {
			f.failNext = false
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": map[string]string{"code": "INTERNAL_ERROR", "message": "boom"},
			})
			return
		}
		var req struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		msg := Message{ID: "m2", TicketID: "t1", Role: "admin", Content: req.Content, CreatedAt: time.Now()}
		f.ticket.Messages = append(f.ticket.Messages, msg)
		writeJSON(w, http.StatusCreated, map[string]any{"data": msg})
	})
	mux.HandleFunc("POST /api/tickets/t1/close", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ticket.Status = "CLOSED"
		writeJSON(w, http.StatusOK, map[string]any{"data": f.ticket})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newSyncerFixture(t *testing.T) (*Syncer, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewSyncer(New(srv.URL)), api
}

func TestRefreshPopulatesView(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()

	require.NoError(t, syncer.Refresh(ctx, "t1"))

	view, ok := syncer.View("t1")
	require.True(t, ok)
	require.Equal(t, "SUBMITTED", view.Confirmed.Ticket.Status)
	require.Len(t, view.Confirmed.Messages, 1)
}

func TestSendAdminMessageReconciles(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	msg, err := syncer.SendAdminMessage(ctx, "t1", "on it")
	require.NoError(t, err)
	require.Equal(t, "admin", msg.Role)

	view, _ := syncer.View("t1")
	require.False(t, view.Pending())
	require.Len(t, view.Confirmed.Messages, 2)
	// The synthetic local id was replaced by the server-assigned one.
	require.Equal(t, "m2", view.Confirmed.Messages[1].ID)
}

func TestSendAdminMessageRollsBackOnFailure(t *testing.T) {
	syncer, api := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	before, _ := syncer.View("t1")

	api.mu.Lock()
	api.failNext = true
	api.mu.Unlock()

	_, err := syncer.SendAdminMessage(ctx, "t1", "on it")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.Retryable())

	// The rollback restored the pre-mutation cache exactly.
	after, _ := syncer.View("t1")
	require.Equal(t, before.Confirmed, after.Confirmed)
	require.False(t, after.Pending())
}

func TestSendUserMessageReconciles(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	reply, err := syncer.SendUserMessage(ctx, "t1", "it keeps logging me out")
	require.NoError(t, err)
	require.NotEmpty(t, reply)

	view, _ := syncer.View("t1")
	require.False(t, view.Pending())
	require.Len(t, view.Confirmed.Messages, 3)
}

func TestSendUserMessageWithoutTicketIDSkipsCache(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()

	reply, err := syncer.SendUserMessage(ctx, "", "hello, I need help")
	require.NoError(t, err)
	require.NotEmpty(t, reply)

	// No conversation id yet means nothing to cache.
	_, ok := syncer.View("")
	require.False(t, ok)
}

func TestStaleReconcileDoesNotClobberNewerMutation(t *testing.T) {
	syncer, api := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	release := make(chan struct{})
	started := make(chan struct{})
	api.mu.Lock()
	api.holdGet = release
	api.getStarted = started
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := syncer.SendAdminMessage(ctx, "t1", "on it")
		done <- err
	}()

	// Wait until the first mutation's reconcile fetch has snapshotted the
	// pre-close ticket and is parked.
	<-started

	_, err := syncer.Close(ctx, "t1")
	require.NoError(t, err)

	view, _ := syncer.View("t1")
	require.Equal(t, "CLOSED", view.Confirmed.Ticket.Status)

	// Releasing the stale response must not roll the view back.
	close(release)
	require.NoError(t, <-done)

	view, _ = syncer.View("t1")
	require.Equal(t, "CLOSED", view.Confirmed.Ticket.Status)
	require.False(t, view.Pending())
}

func TestCloseAppliesOptimisticallyAndReconciles(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	ticket, err := syncer.Close(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "CLOSED", ticket.Status)

	view, _ := syncer.View("t1")
	require.Equal(t, "CLOSED", view.Confirmed.Ticket.Status)
	require.False(t, view.Pending())
}

func TestForgetDropsView(t *testing.T) {
	syncer, _ := newSyncerFixture(t)
	ctx := context.Background()
	require.NoError(t, syncer.Refresh(ctx, "t1"))

	syncer.Forget("t1")
	_, ok := syncer.View("t1")
	require.False(t, ok)
}
