package repository

import (
	"context"
	"errors"

	"clubpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UsuarioRepository interface {
	// FindByID returns nil, nil for unknown users.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error)
	RolTienePermiso(ctx context.Context, rol, permiso string) (bool, error)
}

type usuarioRepo struct{ db *gorm.DB }

func NewUsuarioRepository(db *gorm.DB) UsuarioRepository { return &usuarioRepo{db: db} }

func (r *usuarioRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Usuario, error) {
	var u model.Usuario
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *usuarioRepo) RolTienePermiso(ctx context.Context, rol, permiso string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.RolPermiso{}).
		Where("rol = ? AND permiso = ?", rol, permiso).
		Count(&n).Error
	return n > 0, err
}
