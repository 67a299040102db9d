package infra

import (
	"context"
)

// ChanPool é um semáforo baseado em channel para limitar requests simultâneos.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

// Acquire implementa domain.SlotPool.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) Capacity() int { return cap(p.sem) }

// InUse devolve quantas vagas estão ocupadas agora (exportado como gauge).
func (p *ChanPool) InUse() int { return len(p.sem) }
