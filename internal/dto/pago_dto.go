package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type LineaPagoRequest struct {
	Monto             decimal.Decimal `json:"monto"              validate:"min=0"`
	Moneda            string          `json:"moneda"             validate:"omitempty,len=3"`
	Metodo            string          `json:"metodo"             validate:"required,oneof=efectivo debito credito transferencia qr"`
	Descuento         decimal.Decimal `json:"descuento"          validate:"min=0"`
	MotivoDescuento   *string         `json:"motivo_descuento"`
	Propina           decimal.Decimal `json:"propina"            validate:"min=0"`
	ReferenciaExterna *string         `json:"referencia_externa" validate:"omitempty,max=128"`
	Metadata          json.RawMessage `json:"metadata"           swaggertype:"object"`
}

type RegistrarPagoRequest struct {
	CuentaRef string `json:"cuenta_ref" validate:"required,max=64"`
	// SesionRef defaults to the table session reported by the mesas service.
	SesionRef string `json:"sesion_ref" validate:"omitempty,max=64"`
	// TotalDue seeds the ledger on the first payment; ignored afterwards.
	TotalDue   *decimal.Decimal   `json:"total_due"   validate:"omitempty,min=0"`
	Lineas     []LineaPagoRequest `json:"lineas"      validate:"required,min=1,dive"`
	ServidorID *string            `json:"servidor_id" validate:"omitempty,max=64"`
}

type DescuentoRequest struct {
	SesionRef  string          `json:"sesion_ref"  validate:"omitempty,max=64"`
	Monto      decimal.Decimal `json:"monto"       validate:"required,gt=0"`
	Motivo     *string         `json:"motivo"`
	ServidorID *string         `json:"servidor_id" validate:"omitempty,max=64"`
}

type ReembolsoRequest struct {
	SesionRef  string          `json:"sesion_ref"  validate:"omitempty,max=64"`
	Monto      decimal.Decimal `json:"monto"       validate:"required,gt=0"`
	Metodo     string          `json:"metodo"      validate:"required,oneof=efectivo debito credito transferencia qr"`
	Motivo     *string         `json:"motivo"`
	ServidorID *string         `json:"servidor_id" validate:"omitempty,max=64"`
}

type CerrarCuentaRequest struct {
	ServidorID *string `json:"servidor_id" validate:"omitempty,max=64"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LedgerResponse struct {
	CuentaRef      string          `json:"cuenta_ref"`
	SesionRef      string          `json:"sesion_ref"`
	TotalDue       decimal.Decimal `json:"total_due"`
	TotalDescuento decimal.Decimal `json:"total_descuento"`
	TotalPagado    decimal.Decimal `json:"total_pagado"`
	TotalPropina   decimal.Decimal `json:"total_propina"`
	Estado         string          `json:"estado"` // pendiente | parcial | pagada
	UpdatedAt      time.Time       `json:"updated_at"`
}

type PagoResponse struct {
	ID                string          `json:"id"`
	SesionRef         string          `json:"sesion_ref"`
	CuentaRef         string          `json:"cuenta_ref"`
	Monto             decimal.Decimal `json:"monto"`
	Moneda            string          `json:"moneda"`
	Metodo            string          `json:"metodo"`
	Descuento         decimal.Decimal `json:"descuento"`
	MotivoDescuento   *string         `json:"motivo_descuento"`
	Propina           decimal.Decimal `json:"propina"`
	ReferenciaExterna *string         `json:"referencia_externa"`
	Metadata          json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
	ServidorID        *string         `json:"servidor_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

type LogPagoResponse struct {
	ID            string          `json:"id"`
	CuentaRef     string          `json:"cuenta_ref"`
	SesionRef     string          `json:"sesion_ref"`
	Accion        string          `json:"accion"`
	ValorAnterior json.RawMessage `json:"valor_anterior,omitempty" swaggertype:"object"`
	ValorNuevo    json.RawMessage `json:"valor_nuevo,omitempty"    swaggertype:"object"`
	ServidorID    *string         `json:"servidor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

type LogPagoListResponse struct {
	Data     []LogPagoResponse `json:"data"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}
