package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit"
	"roleplay-realm-gateway/middleware/ratelimit/application"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type ticket struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Subject string `json:"subject"`
}

// app é um recorte mínimo do Roleplay Realm: posts e tickets em memória.
type app struct {
	limits  application.ActionService
	catalog ratelimit.Catalog
	logger  *zap.Logger

	mu      sync.Mutex
	posts   []post
	tickets []ticket
}

func newApp(limits application.ActionService, catalog ratelimit.Catalog, logger *zap.Logger) *app {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &app{limits: limits, catalog: catalog, logger: logger}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/posts", a.createPost)
	r.Get("/api/posts", a.listPosts)
	r.Post("/api/support/tickets", a.createTicket)
	return r
}

// allow consome a cota da ação; em caso de rejeição já escreve o 429. Roda
// logo após a identificação do ator, antes de ler o corpo: requisição
// malformada também gasta cota.
func (a *app) allow(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actor == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-Id"})
		return "", false
	}

	action := a.catalog.MustLookup(name)
	res := a.limits.Check(r.Context(), action, actor)
	if !res.Allowed {
		a.logger.Info("action rate limited",
			zap.String("action", action.Name),
			zap.String("actor", actor),
			zap.Time("reset_at", res.ResetAt),
		)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": action.Message})
		return "", false
	}
	return actor, true
}

func (a *app) createPost(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.allow(w, r, ratelimit.ActionPost)
	if !ok {
		return
	}

	var in struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	p := post{ID: uuid.NewString(), Author: actor, Content: in.Content, CreatedAt: time.Now().UTC()}
	a.mu.Lock()
	a.posts = append(a.posts, p)
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (a *app) listPosts(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	out := make([]post, len(a.posts))
	copy(out, a.posts)
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (a *app) createTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.allow(w, r, ratelimit.ActionTicket)
	if !ok {
		return
	}

	var in struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Subject) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subject is required"})
		return
	}

	t := ticket{ID: uuid.NewString(), Author: actor, Subject: in.Subject}
	a.mu.Lock()
	a.tickets = append(a.tickets, t)
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
