package model

import (
	"time"

	"clubpos/internal/apierror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pago is one tender leg against a bill. Rows are append-only: the hooks below
// reject gorm updates and deletes, and a trigger rejects raw SQL ones.
type Pago struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SesionRef         string          `gorm:"type:varchar(64);not null;index"`
	CuentaRef         string          `gorm:"type:varchar(64);not null;index"`
	Monto             decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Moneda            string          `gorm:"type:varchar(3);not null"`
	Metodo            string          `gorm:"type:varchar(20);not null"`
	Descuento         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	MotivoDescuento   *string
	Propina           decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ReferenciaExterna *string         `gorm:"type:varchar(128)"`
	Metadata          datatypes.JSON  `gorm:"type:jsonb"`
	ServidorID        *string         `gorm:"type:varchar(64)"`
	CreadoPor         *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt         time.Time       `gorm:"not null;index"`
}

func (Pago) TableName() string { return "pagos" }

func (p *Pago) BeforeUpdate(*gorm.DB) error { return apierror.ErrInmutable }
func (p *Pago) BeforeDelete(*gorm.DB) error { return apierror.ErrInmutable }

// LogPago is the append-only audit trail of every mutating action on a bill.
type LogPago struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CuentaRef     string         `gorm:"type:varchar(64);not null;index:idx_log_pagos_cuenta_fecha,priority:1"`
	SesionRef     string         `gorm:"type:varchar(64);not null"`
	Accion        string         `gorm:"type:varchar(32);not null"`
	ValorAnterior datatypes.JSON `gorm:"type:jsonb"`
	ValorNuevo    datatypes.JSON `gorm:"type:jsonb"`
	ServidorID    *string        `gorm:"type:varchar(64)"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_log_pagos_cuenta_fecha,priority:2,sort:desc"`
}

func (LogPago) TableName() string { return "log_pagos" }

func (l *LogPago) BeforeUpdate(*gorm.DB) error { return apierror.ErrInmutable }
func (l *LogPago) BeforeDelete(*gorm.DB) error { return apierror.ErrInmutable }

// Acciones de LogPago
const (
	AccionPago      = "payment"
	AccionDescuento = "discount"
	AccionReembolso = "refund"
	AccionCierre    = "close_bill"
)
