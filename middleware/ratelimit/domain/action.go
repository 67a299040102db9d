package domain

// Action é uma operação com efeito colateral que é limitada por ator
// (criar post, comentário, listagem de servidor, etc).
type Action struct {
	Name   string
	Policy Policy
	// Message é o texto devolvido ao cliente quando a ação é rejeitada.
	Message string
}

// Key devolve a chave do ator para esta ação.
func (a Action) Key(actor string) Key {
	return NewKey(a.Name, actor)
}
