package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shelfmark/shelfmark/libs/events"
	"github.com/shelfmark/shelfmark/services/shelf-service/internal/storage"
)

// Store is the business persistence the handler drives. Each operation runs
// inside a transaction started here so the outbox append commits or rolls
// back together with the business row.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateBookmark(ctx context.Context, tx pgx.Tx, userID, bookID, chapter string) (string, error)
	AddWishlistItem(ctx context.Context, tx pgx.Tx, userID, bookID string) (string, error)
}

// Appender is the outbox writer contract.
type Appender interface {
	Append(ctx context.Context, tx pgx.Tx, topic, key string, env events.Envelope) error
}

type ShelfHandler struct {
	repo   Store
	outbox Appender
	logger *slog.Logger
	topic  string
}

func NewShelfHandler(repo Store, outbox Appender, logger *slog.Logger, topic string) *ShelfHandler {
	if topic == "" {
		topic = "shelf-events"
	}
	return &ShelfHandler{repo: repo, outbox: outbox, logger: logger, topic: topic}
}

type addBookmarkRequest struct {
	UserID  string `json:"user_id"`
	BookID  string `json:"book_id"`
	Chapter string `json:"chapter"`
}

type addWishlistRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type createdResponse struct {
	ID string `json:"id"`
}

func (h *ShelfHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req addBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.BookID = strings.TrimSpace(req.BookID)
	req.Chapter = strings.TrimSpace(req.Chapter)
	if req.UserID == "" || req.BookID == "" {
		http.Error(w, "user_id and book_id are required", http.StatusBadRequest)
		return
	}

	id, err := h.withTx(r.Context(), func(ctx context.Context, tx pgx.Tx) (string, error) {
		bookmarkID, err := h.repo.CreateBookmark(ctx, tx, req.UserID, req.BookID, req.Chapter)
		if err != nil {
			return "", err
		}
		metadata := map[string]string{"bookmark_id": bookmarkID}
		if req.Chapter != "" {
			metadata["chapter"] = req.Chapter
		}
		err = h.outbox.Append(ctx, tx, h.topic, req.UserID, events.Envelope{
			EventType:  "shelf.bookmark.added.v1",
			ActorID:    req.UserID,
			TargetType: "BOOK",
			TargetID:   req.BookID,
			Metadata:   metadata,
		})
		return bookmarkID, err
	})
	h.respond(w, id, err)
}

func (h *ShelfHandler) AddWishlistItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req addWishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.BookID = strings.TrimSpace(req.BookID)
	if req.UserID == "" || req.BookID == "" {
		http.Error(w, "user_id and book_id are required", http.StatusBadRequest)
		return
	}

	id, err := h.withTx(r.Context(), func(ctx context.Context, tx pgx.Tx) (string, error) {
		itemID, err := h.repo.AddWishlistItem(ctx, tx, req.UserID, req.BookID)
		if err != nil {
			return "", err
		}
		err = h.outbox.Append(ctx, tx, h.topic, req.UserID, events.Envelope{
			EventType:  "shelf.wishlist.added.v1",
			ActorID:    req.UserID,
			TargetType: "BOOK",
			TargetID:   req.BookID,
			Metadata:   map[string]string{"wishlist_item_id": itemID},
		})
		return itemID, err
	})
	h.respond(w, id, err)
}

// withTx commits only if fn succeeds, so a failed outbox append rolls back
// the business row with it.
func (h *ShelfHandler) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) (string, error)) (string, error) {
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := fn(ctx, tx)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (h *ShelfHandler) respond(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		http.Error(w, "already exists", http.StatusConflict)
	case err != nil:
		h.logger.Error("shelf mutation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createdResponse{ID: id})
	}
}
