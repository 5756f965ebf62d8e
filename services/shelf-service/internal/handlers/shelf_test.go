package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/shelfmark/shelfmark/libs/events"
	"github.com/shelfmark/shelfmark/services/shelf-service/internal/storage"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeStore struct {
	tx        *fakeTx
	bookmarks int
	wishlist  int
	err       error
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	s.tx = &fakeTx{}
	return s.tx, nil
}

func (s *fakeStore) CreateBookmark(_ context.Context, _ pgx.Tx, _, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.bookmarks++
	return "bm-1", nil
}

func (s *fakeStore) AddWishlistItem(_ context.Context, _ pgx.Tx, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.wishlist++
	return "wl-1", nil
}

type fakeAppender struct {
	appended []events.Envelope
	topics   []string
	keys     []string
	err      error
}

func (a *fakeAppender) Append(_ context.Context, _ pgx.Tx, topic, key string, env events.Envelope) error {
	if a.err != nil {
		return a.err
	}
	a.appended = append(a.appended, env)
	a.topics = append(a.topics, topic)
	a.keys = append(a.keys, key)
	return nil
}

func newTestHandler(store *fakeStore, appender *fakeAppender) *ShelfHandler {
	return NewShelfHandler(store, appender, slog.New(slog.NewTextHandler(io.Discard, nil)), "shelf-events")
}

func TestAddBookmark_CommitsRowAndEventTogether(t *testing.T) {
	store := &fakeStore{}
	appender := &fakeAppender{}
	h := newTestHandler(store, appender)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shelf/bookmarks",
		strings.NewReader(`{"user_id":"user-3","book_id":"book-8","chapter":"12"}`))
	rr := httptest.NewRecorder()
	h.AddBookmark(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
	if store.bookmarks != 1 {
		t.Fatalf("expected 1 bookmark insert, got %d", store.bookmarks)
	}
	if len(appender.appended) != 1 {
		t.Fatalf("expected 1 outbox append, got %d", len(appender.appended))
	}
	env := appender.appended[0]
	if env.EventType != "shelf.bookmark.added.v1" || env.ActorID != "user-3" || env.TargetID != "book-8" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Metadata["bookmark_id"] != "bm-1" || env.Metadata["chapter"] != "12" {
		t.Fatalf("unexpected metadata: %v", env.Metadata)
	}
	if appender.topics[0] != "shelf-events" || appender.keys[0] != "user-3" {
		t.Fatalf("unexpected routing: topic=%s key=%s", appender.topics[0], appender.keys[0])
	}
	if !store.tx.committed {
		t.Fatal("transaction must commit on success")
	}
}

func TestAddBookmark_AppendFailureRollsBackBusinessRow(t *testing.T) {
	store := &fakeStore{}
	appender := &fakeAppender{err: errors.New("insert outbox record: connection reset")}
	h := newTestHandler(store, appender)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shelf/bookmarks",
		strings.NewReader(`{"user_id":"user-3","book_id":"book-8"}`))
	rr := httptest.NewRecorder()
	h.AddBookmark(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rr.Code)
	}
	if store.tx.committed {
		t.Fatal("transaction must not commit when outbox append fails")
	}
	if !store.tx.rolledBack {
		t.Fatal("transaction must roll back when outbox append fails")
	}
}

func TestAddBookmark_ValidatesInput(t *testing.T) {
	h := newTestHandler(&fakeStore{}, &fakeAppender{})

	cases := []string{
		`{`,
		`{"user_id":"","book_id":"book-8"}`,
		`{"user_id":"user-3","book_id":" "}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shelf/bookmarks", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.AddBookmark(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status %d, want 400", body, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shelf/bookmarks", nil)
	rr := httptest.NewRecorder()
	h.AddBookmark(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status %d, want 405", rr.Code)
	}
}

func TestAddWishlistItem_DuplicateMapsToConflict(t *testing.T) {
	store := &fakeStore{err: storage.ErrDuplicate}
	h := newTestHandler(store, &fakeAppender{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shelf/wishlist",
		strings.NewReader(`{"user_id":"user-3","book_id":"book-8"}`))
	rr := httptest.NewRecorder()
	h.AddWishlistItem(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409", rr.Code)
	}
	if store.tx.committed {
		t.Fatal("duplicate insert must not commit")
	}
}

func TestAddWishlistItem_AppendsEvent(t *testing.T) {
	store := &fakeStore{}
	appender := &fakeAppender{}
	h := newTestHandler(store, appender)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shelf/wishlist",
		strings.NewReader(`{"user_id":"user-5","book_id":"book-2"}`))
	rr := httptest.NewRecorder()
	h.AddWishlistItem(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
	env := appender.appended[0]
	if env.EventType != "shelf.wishlist.added.v1" || env.Metadata["wishlist_item_id"] != "wl-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
