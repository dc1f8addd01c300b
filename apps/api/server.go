package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/chat-sync/pkg/auth"
	"github.com/mahaj/chat-sync/pkg/blob"
	"github.com/mahaj/chat-sync/pkg/model"
	"github.com/mahaj/chat-sync/pkg/obs"
)

// Store is the durable chat state the API writes through.
type Store interface {
	UpsertUser(ctx context.Context, userID, displayName, email, avatarURL string) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID, username, bio, avatarURL string) (*model.User, error)

	FindOrCreateConversation(ctx context.Context, a, b string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)

	AppendMessage(ctx context.Context, convID, senderID, content string, replyTo *model.MessageRef, clientToken string) (*model.Message, error)
	ListMessages(ctx context.Context, convID, viewerID string, limit int) ([]model.Message, error)
	MarkRead(ctx context.Context, convID string, msgID int64, readerID string) (*model.Message, error)

	PublishStory(ctx context.Context, ownerID, imageURL string) (*model.StoryPost, error)
	ListVisibleStories(ctx context.Context, viewerID string) ([]model.StoryPost, error)

	UnreadCount(ctx context.Context, userID, otherUserID string) (int64, error)
	ResetUnread(ctx context.Context, userID, otherUserID string) error
}

// EventPublisher pushes committed changes to the fan-out bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev *model.Event) error
}

// Typing is the ephemeral presence surface.
type Typing interface {
	SetTyping(ctx context.Context, st model.TypingState) error
	OnlineUsers(ctx context.Context) ([]string, error)
}

type Server struct {
	store    Store
	events   EventPublisher
	typing   Typing
	uploader blob.Uploader
	identity auth.Identity
	sessions *auth.Sessions
	logger   *slog.Logger
}

func NewServer(store Store, events EventPublisher, typing Typing, uploader blob.Uploader, identity auth.Identity, sessions *auth.Sessions, logger *slog.Logger) *Server {
	return &Server{
		store:    store,
		events:   events,
		typing:   typing,
		uploader: uploader,
		identity: identity,
		sessions: sessions,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Post("/auth/login", s.handleLogin)
	r.Method(http.MethodGet, "/metrics", obs.MetricsHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.sessions.Middleware)

		r.Get("/users/me", s.handleGetMe)
		r.Put("/users/me", s.handleUpdateMe)
		r.Get("/users/lookup", s.handleLookupUser)

		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{conversationID}/messages", s.handleListMessages)
		r.Post("/conversations/{conversationID}/messages", s.handleAppendMessage)
		r.Post("/conversations/{conversationID}/read", s.handleMarkRead)
		r.Post("/conversations/{conversationID}/typing", s.handleSetTyping)

		r.Get("/presence/online", s.handleOnline)

		r.Get("/stories", s.handleListStories)
		r.Post("/stories", s.handlePublishStory)

		r.Post("/media", s.handleUpload)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// publish pushes a change event after its store write committed. A publish
// failure is logged, not returned: the write is already durable and the
// caller got its result; subscribers recover on their next snapshot.
func (s *Server) publish(ctx context.Context, ev *model.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Error("publish event failed", "kind", ev.Kind, "error", err)
	}
}
