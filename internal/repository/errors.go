package repository

import (
	"errors"

	"clubpos/internal/apierror"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSesionAbiertaDuplicada is returned when an insert would leave two caja
// sessions in estado "abierta".
var ErrSesionAbiertaDuplicada = errors.New("ya existe una sesion de caja abierta")

// ErrSesionNoAbierta is returned when a close finds the session already closed.
var ErrSesionNoAbierta = errors.New("la sesion de caja no esta abierta")

const (
	pgUniqueViolation = "23505"
	pgRaiseException  = "P0001"

	idxCajaUnaAbierta = "ux_sesiones_caja_una_abierta"
)

// translate maps PostgreSQL errors raised by our constraints and triggers to
// domain errors. Anything else is returned as is.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == idxCajaUnaAbierta:
		return ErrSesionAbiertaDuplicada
	case pgErr.Code == pgRaiseException:
		return apierror.ErrInmutable
	}
	return err
}
