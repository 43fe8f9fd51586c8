package infra

import (
	"fmt"

	"clubpos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial indexes, CHECK constraints, immutability triggers).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates the schema and applies the patches. Safe to re-run.
// Integration tests call it directly against a throwaway database.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Usuario{},
		&model.RolPermiso{},
		&model.Pago{},
		&model.LedgerCuenta{},
		&model.LogPago{},
		&model.SesionCaja{},
		&model.MovimientoCaja{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL. Each statement is guarded by an
// existence check or uses CREATE OR REPLACE so re-running is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// Only one drawer may be open across every instance of the service.
		{"partial unique index on open caja", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_sesiones_caja_una_abierta
    ON sesiones_caja (estado)
    WHERE estado = 'abierta'`},

		{"check pagos amounts", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_pagos_montos_no_negativos') THEN
    ALTER TABLE pagos ADD CONSTRAINT chk_pagos_montos_no_negativos
      CHECK (monto >= 0 AND descuento >= 0 AND propina >= 0 AND cuenta_ref <> '');
  END IF;
END $$`},
		{"check movimientos_caja", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_movimientos_caja_tipo_monto') THEN
    ALTER TABLE movimientos_caja ADD CONSTRAINT chk_movimientos_caja_tipo_monto
      CHECK (monto >= 0 AND tipo IN ('venta', 'reembolso', 'propina', 'deposito', 'retiro'));
  END IF;
END $$`},
		{"check sesiones_caja", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_sesiones_caja_montos') THEN
    ALTER TABLE sesiones_caja ADD CONSTRAINT chk_sesiones_caja_montos
      CHECK (monto_apertura >= 0 AND (monto_cierre IS NULL OR monto_cierre >= 0)
             AND estado IN ('abierta', 'cerrada'));
  END IF;
END $$`},
		{"check ledger_cuentas estado", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_ledger_cuentas_estado') THEN
    ALTER TABLE ledger_cuentas ADD CONSTRAINT chk_ledger_cuentas_estado
      CHECK (estado IN ('pendiente', 'parcial', 'pagada'));
  END IF;
END $$`},

		// Raw SQL must not be able to rewrite history either.
		{"function rechazar_mutacion", `
CREATE OR REPLACE FUNCTION rechazar_mutacion() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'registro inmutable: % no admite %', TG_TABLE_NAME, TG_OP
    USING ERRCODE = 'P0001';
END $$ LANGUAGE plpgsql`},
		{"function proteger_caja_cerrada", `
CREATE OR REPLACE FUNCTION proteger_caja_cerrada() RETURNS trigger AS $$
BEGIN
  IF OLD.estado = 'cerrada' THEN
    RAISE EXCEPTION 'registro inmutable: sesion de caja % cerrada', OLD.id
      USING ERRCODE = 'P0001';
  END IF;
  RETURN NEW;
END $$ LANGUAGE plpgsql`},
		{"trigger pagos", triggerSQL("trg_pagos_inmutable", "pagos", "UPDATE OR DELETE", "rechazar_mutacion")},
		{"trigger log_pagos", triggerSQL("trg_log_pagos_inmutable", "log_pagos", "UPDATE OR DELETE", "rechazar_mutacion")},
		{"trigger movimientos_caja", triggerSQL("trg_movimientos_caja_inmutable", "movimientos_caja", "UPDATE OR DELETE", "rechazar_mutacion")},
		{"trigger ledger_cuentas delete", triggerSQL("trg_ledger_cuentas_sin_borrado", "ledger_cuentas", "DELETE", "rechazar_mutacion")},
		{"trigger sesiones_caja delete", triggerSQL("trg_sesiones_caja_sin_borrado", "sesiones_caja", "DELETE", "rechazar_mutacion")},
		{"trigger sesiones_caja cerrada", triggerSQL("trg_sesiones_caja_cerrada", "sesiones_caja", "UPDATE", "proteger_caja_cerrada")},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}

func triggerSQL(name, table, events, fn string) string {
	return fmt.Sprintf(`
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = '%s') THEN
    CREATE TRIGGER %s BEFORE %s ON %s
      FOR EACH ROW EXECUTE FUNCTION %s();
  END IF;
END $$`, name, name, events, table, fn)
}
