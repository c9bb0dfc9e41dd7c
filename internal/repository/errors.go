package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound se devuelve cuando la fila buscada no existe.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict se devuelve ante una violacion de clave unica.
	ErrConflict = errors.New("repository: conflict")
)

const uniqueViolation = "23505"

// mapError traduce errores de pgx a los errores del paquete.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}
