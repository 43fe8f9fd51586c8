package service

import (
	"context"
	"testing"

	"clubpos/internal/apierror"
	"clubpos/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsuarioRepo struct {
	usuarios map[uuid.UUID]*model.Usuario
	permisos map[string]map[string]bool
}

func (r *fakeUsuarioRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Usuario, error) {
	return r.usuarios[id], nil
}

func (r *fakeUsuarioRepo) RolTienePermiso(_ context.Context, rol, permiso string) (bool, error) {
	return r.permisos[rol][permiso], nil
}

func TestAutorizador(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("2468"), bcrypt.MinCost)
	require.NoError(t, err)
	h := string(hash)

	sup := &model.Usuario{ID: uuid.New(), Rol: "supervisor", Activo: true, PinHash: &h}
	baja := &model.Usuario{ID: uuid.New(), Rol: "supervisor", Activo: false, PinHash: &h}
	cajero := &model.Usuario{ID: uuid.New(), Rol: "cajero", Activo: true}

	repo := &fakeUsuarioRepo{
		usuarios: map[uuid.UUID]*model.Usuario{sup.ID: sup, baja.ID: baja, cajero.ID: cajero},
		permisos: map[string]map[string]bool{
			"supervisor": {model.PermisoCerrarCaja: true, model.PermisoAprobarDesvio: true},
			"cajero":     {model.PermisoAbrirCaja: true, model.PermisoCerrarCaja: true},
		},
	}
	a := NewAutorizador(repo)
	ctx := context.Background()

	ok, err := a.TienePermiso(ctx, sup.ID, model.PermisoAprobarDesvio)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.TienePermiso(ctx, cajero.ID, model.PermisoAprobarDesvio)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.TienePermiso(ctx, baja.ID, model.PermisoCerrarCaja)
	require.NoError(t, err)
	assert.False(t, ok, "inactive users hold nothing")

	_, err = a.TienePermiso(ctx, uuid.New(), model.PermisoAbrirCaja)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))

	ok, err = a.VerificarPIN(ctx, sup.ID, "2468")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.VerificarPIN(ctx, sup.ID, "1357")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.VerificarPIN(ctx, baja.ID, "2468")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.VerificarPIN(ctx, cajero.ID, "2468")
	require.NoError(t, err)
	assert.False(t, ok, "no PIN configured")
}
