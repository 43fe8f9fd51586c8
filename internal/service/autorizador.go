package service

import (
	"context"
	"errors"

	"clubpos/internal/apierror"
	"clubpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Autorizador answers capability checks for staff members.
type Autorizador interface {
	// TienePermiso returns a not-found error for unknown users. Inactive
	// users hold no permissions.
	TienePermiso(ctx context.Context, usuarioID uuid.UUID, permiso string) (bool, error)
	// VerificarPIN reports whether pin matches the user's supervisor PIN.
	VerificarPIN(ctx context.Context, usuarioID uuid.UUID, pin string) (bool, error)
}

type autorizador struct {
	repo repository.UsuarioRepository
}

func NewAutorizador(repo repository.UsuarioRepository) Autorizador {
	return &autorizador{repo: repo}
}

func (a *autorizador) TienePermiso(ctx context.Context, usuarioID uuid.UUID, permiso string) (bool, error) {
	u, err := a.repo.FindByID(ctx, usuarioID)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, apierror.NotFound("usuario no encontrado")
	}
	if !u.Activo {
		return false, nil
	}
	return a.repo.RolTienePermiso(ctx, u.Rol, permiso)
}

func (a *autorizador) VerificarPIN(ctx context.Context, usuarioID uuid.UUID, pin string) (bool, error) {
	u, err := a.repo.FindByID(ctx, usuarioID)
	if err != nil {
		return false, err
	}
	if u == nil || !u.Activo || u.PinHash == nil {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(*u.PinHash), []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		log.Warn().Str("usuario_id", usuarioID.String()).Msg("autorizador: supervisor PIN mismatch")
		return false, nil
	}
	return err == nil, err
}
