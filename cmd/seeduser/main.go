// Seeds role permissions plus a demo cashier and a supervisor with an override
// PIN, then prints dev tokens for both.
// Uso: go run ./cmd/seeduser
package main

import (
	"fmt"
	"os"
	"time"

	"clubpos/internal/config"
	"clubpos/internal/infra"
	"clubpos/internal/middleware"
	"clubpos/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var permisosPorRol = map[string][]string{
	"cajero":        {model.PermisoAbrirCaja, model.PermisoCerrarCaja},
	"supervisor":    {model.PermisoAbrirCaja, model.PermisoCerrarCaja, model.PermisoAprobarDesvio},
	"administrador": {model.PermisoAbrirCaja, model.PermisoCerrarCaja, model.PermisoAprobarDesvio},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	pin := os.Getenv("SUPERVISOR_PIN")
	if pin == "" {
		pin = "4321"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), 12)
	if err != nil {
		log.Fatal().Err(err).Msg("bcrypt error")
	}
	pinHash := string(hash)

	var permisos []model.RolPermiso
	for rol, ps := range permisosPorRol {
		for _, p := range ps {
			permisos = append(permisos, model.RolPermiso{Rol: rol, Permiso: p})
		}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&permisos).Error; err != nil {
		log.Fatal().Err(err).Msg("seeding rol_permisos")
	}

	cajero := upsertUsuario(db, model.Usuario{Username: "cajero", Nombre: "Cajero Demo", Rol: "cajero", Activo: true})
	supervisor := upsertUsuario(db, model.Usuario{Username: "supervisor", Nombre: "Supervisor Demo", Rol: "supervisor", PinHash: &pinHash, Activo: true})

	for _, u := range []model.Usuario{cajero, supervisor} {
		tok, err := firmar(cfg.JWTSecret, u)
		if err != nil {
			log.Fatal().Err(err).Msg("signing token")
		}
		fmt.Printf("%s (%s)\n  id:    %s\n  token: %s\n", u.Username, u.Rol, u.ID, tok)
	}
	fmt.Printf("PIN de supervisor: %s\n", pin)
}

func upsertUsuario(db *gorm.DB, u model.Usuario) model.Usuario {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"nombre", "rol", "pin_hash", "activo"}),
	}).Create(&u).Error
	if err != nil {
		log.Fatal().Err(err).Str("username", u.Username).Msg("upsert usuario")
	}
	// On conflict the returned id may be empty; read it back.
	if err := db.Where("username = ?", u.Username).First(&u).Error; err != nil {
		log.Fatal().Err(err).Str("username", u.Username).Msg("reload usuario")
	}
	return u
}

func firmar(secret string, u model.Usuario) (string, error) {
	claims := middleware.JWTClaims{
		UserID:   u.ID.String(),
		Username: u.Username,
		Rol:      u.Rol,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
