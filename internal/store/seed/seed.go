// Package seed holds the demo tenant used by the in-memory store and by a
// freshly created local fallback database.
package seed

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"posengine/backend/internal/domain"
)

const (
	DemoBusinessID = "7c1e4a52-3b0d-4f7e-9a61-0d2f5b8c9e10"
	DefaultStock   = 120
)

type Data struct {
	Businesses []domain.Business
	Products   []domain.ProductSnapshot
	Users      []domain.UserAccount
	// UsedDefaultPasswords is set when the demo passwords were not overridden.
	UsedDefaultPasswords bool
}

// Demo builds the demo tenant. Passwords come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD, falling back to dev defaults.
func Demo(cost int) (Data, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")

	data := Data{
		Businesses: []domain.Business{{
			ID:       DemoBusinessID,
			Name:     "Abarrotes La Esquina",
			Handle:   "la-esquina",
			Category: "grocery",
			Currency: "MXN",
			Timezone: "America/Mexico_City",
		}},
		UsedDefaultPasswords: os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "",
	}

	for _, p := range []struct {
		id, sku, name string
		price         int64
	}{
		{"3f2a9c1b-0001-4a00-8000-000000000001", "CAF-001", "Cafe de olla 250g", 8900},
		{"3f2a9c1b-0002-4a00-8000-000000000002", "LEC-001", "Leche entera 1L", 2800},
		{"3f2a9c1b-0003-4a00-8000-000000000003", "PAN-001", "Pan de caja", 4500},
		{"3f2a9c1b-0004-4a00-8000-000000000004", "HUE-012", "Huevo 12 piezas", 5200},
		{"3f2a9c1b-0005-4a00-8000-000000000005", "TOR-001", "Tortillas 1kg", 2400},
		{"3f2a9c1b-0006-4a00-8000-000000000006", "REF-600", "Refresco 600ml", 1900},
		{"3f2a9c1b-0007-4a00-8000-000000000007", "JAB-001", "Jabon de barra", 1650},
		{"3f2a9c1b-0008-4a00-8000-000000000008", "FRI-001", "Frijol negro 1kg", 3600},
	} {
		data.Products = append(data.Products, domain.ProductSnapshot{
			ID:         p.id,
			BusinessID: DemoBusinessID,
			SKU:        p.sku,
			Name:       p.name,
			PriceCents: p.price,
			Stock:      DefaultStock,
		})
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username, password, userID, name, role string
	}{
		{"admin", adminPwd, "5d0b2e8a-6c41-4a7f-b1d3-2e9f8a7c6b01", "Administrador", "admin"},
		{"cashier", cashierPwd, "5d0b2e8a-6c41-4a7f-b1d3-2e9f8a7c6b02", "Cajero 1", "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), cost)
		if err != nil {
			return Data{}, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		data.Users = append(data.Users, domain.UserAccount{
			Username:    u.username,
			Password:    string(hash),
			UserID:      u.userID,
			BusinessID:  DemoBusinessID,
			DisplayName: u.name,
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		})
	}
	return data, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
