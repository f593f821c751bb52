package domain

import (
	"errors"
	"fmt"
)

// Taxonomia de falhas do motor. Nenhuma delas derruba o processo:
// toda operação devolve um desfecho tipado.
var (
	// ErrInvalidArgument: entrada fora do contrato (ex.: nota fora de [1,5]). Nunca repetir.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound: sem estado de navegação, prestador inexistente, etc.
	ErrNotFound = errors.New("not found")
	// ErrLimitExceeded: desfecho esperado de um limite atingido (ver LimitError).
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrDependencyUnavailable: SessionCache ou ProviderStore fora do ar / timeout.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrStaleAggregate: a avaliação foi gravada, mas o recálculo do agregado falhou.
	// O agregado anterior continua intacto (desatualizado, mas consistente).
	ErrStaleAggregate = errors.New("stale aggregate")
)

// LimitError carrega o limite configurado para que o chamador possa renderizar a mensagem.
type LimitError struct {
	Class ActionClass
	Limit int
	Count int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d/%d", e.Class, e.Count, e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Unavailable embrulha um erro de I/O como ErrDependencyUnavailable, preservando a causa.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependencyUnavailable, err)
}
