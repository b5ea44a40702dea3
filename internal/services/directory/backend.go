package directory

import "context"

// Backend é a abstração do serviço externo de descoberta/sessões.
// As chamadas são síncronas; o Client é quem as torna assíncronas.
type Backend interface {
	// Ready não faz I/O. Um erro aqui vira ErrServiceUnavailable imediato.
	Ready() error

	Create(ctx context.Context, name string, settings Settings) (Descriptor, error)
	Start(ctx context.Context, name string) error
	Find(ctx context.Context, query Query) ([]Summary, error)
	Join(ctx context.Context, name string, session Summary) (string, error)
	End(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
}
