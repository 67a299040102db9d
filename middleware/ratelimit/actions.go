package ratelimit

import (
	"sort"
	"time"

	"roleplay-realm-gateway/middleware/ratelimit/domain"
)

// Ações limitadas do Roleplay Realm.
const (
	ActionPost        = "post"
	ActionComment     = "comment"
	ActionServer      = "server"
	ActionMarketplace = "marketplace"
	ActionEvent       = "event"
	ActionTicket      = "ticket"
	ActionProfile     = "profile"
)

// DefaultActions devolve as políticas padrão de cada ação.
func DefaultActions() []domain.Action {
	return []domain.Action{
		{Name: ActionPost, Policy: domain.Policy{Window: time.Minute, MaxRequests: 5}, Message: "Too many requests. Please wait before posting again."},
		{Name: ActionComment, Policy: domain.Policy{Window: time.Minute, MaxRequests: 10}, Message: "Too many requests"},
		{Name: ActionServer, Policy: domain.Policy{Window: time.Hour, MaxRequests: 3}, Message: "Too many server listings created. Please wait before creating another."},
		{Name: ActionMarketplace, Policy: domain.Policy{Window: time.Hour, MaxRequests: 5}, Message: "Too many listings created"},
		{Name: ActionEvent, Policy: domain.Policy{Window: time.Hour, MaxRequests: 5}, Message: "Too many events created"},
		{Name: ActionTicket, Policy: domain.Policy{Window: time.Hour, MaxRequests: 5}, Message: "Too many tickets created. Please wait before submitting another."},
		{Name: ActionProfile, Policy: domain.Policy{Window: time.Minute, MaxRequests: 10}, Message: "Too many requests. Please wait before updating again."},
	}
}

// Catalog indexa as ações por nome.
type Catalog map[string]domain.Action

// NewCatalog parte das ações padrão e aplica overrides de política por nome.
// Overrides só trocam os campos positivos; nomes desconhecidos viram ações novas
// com a mensagem genérica.
func NewCatalog(overrides map[string]domain.Policy) Catalog {
	c := make(Catalog)
	for _, a := range DefaultActions() {
		c[a.Name] = a
	}
	for name, p := range overrides {
		a, ok := c[name]
		if !ok {
			a = domain.Action{Name: name, Message: "Too many requests"}
		}
		if p.Window > 0 {
			a.Policy.Window = p.Window
		}
		if p.MaxRequests > 0 {
			a.Policy.MaxRequests = p.MaxRequests
		}
		c[name] = a
	}
	return c
}

// Lookup devolve a ação pelo nome.
func (c Catalog) Lookup(name string) (domain.Action, bool) {
	a, ok := c[name]
	return a, ok
}

// MustLookup é Lookup para wiring de rotas; ação ausente é erro de programação.
func (c Catalog) MustLookup(name string) domain.Action {
	a, ok := c[name]
	if !ok {
		panic("ratelimit: unknown action " + name)
	}
	return a
}

// Sorted devolve as ações ordenadas por nome (listagem/diagnóstico).
func (c Catalog) Sorted() []domain.Action {
	out := make([]domain.Action, 0, len(c))
	for _, a := range c {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Route liga um endpoint do Roleplay Realm à ação que ele consome.
type Route struct {
	Method  string
	Pattern string
	Action  string
}

// DefaultRoutes são os endpoints com efeito colateral que passam pela janela
// de cada ação. Os patterns seguem a sintaxe do chi.
func DefaultRoutes() []Route {
	return []Route{
		{Method: "POST", Pattern: "/api/posts", Action: ActionPost},
		{Method: "POST", Pattern: "/api/posts/{id}/comments", Action: ActionComment},
		{Method: "POST", Pattern: "/api/servers", Action: ActionServer},
		{Method: "POST", Pattern: "/api/marketplace", Action: ActionMarketplace},
		{Method: "POST", Pattern: "/api/events", Action: ActionEvent},
		{Method: "POST", Pattern: "/api/support/tickets", Action: ActionTicket},
		{Method: "PUT", Pattern: "/api/profile", Action: ActionProfile},
	}
}
