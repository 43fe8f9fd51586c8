package model

import (
	"time"

	"github.com/google/uuid"
)

// Usuario is a staff member known to the ledger. Credentials live in the
// external auth service; only the role and the supervisor PIN are kept here.
// Rol: "cajero" | "mozo" | "supervisor" | "administrador"
type Usuario struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Username string    `gorm:"uniqueIndex;not null"`
	Nombre   string    `gorm:"not null"`
	Rol      string    `gorm:"type:varchar(20);not null;index"`
	// PinHash is the bcrypt hash of the supervisor PIN used for manager overrides
	PinHash   *string
	Activo    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RolPermiso grants one capability to a role.
type RolPermiso struct {
	Rol     string `gorm:"type:varchar(20);primaryKey"`
	Permiso string `gorm:"type:varchar(64);primaryKey"`
}

func (RolPermiso) TableName() string { return "rol_permisos" }

// Permisos
const (
	PermisoAbrirCaja     = "drawer:open"
	PermisoCerrarCaja    = "drawer:close"
	PermisoAprobarDesvio = "drawer:override_variance"
)
