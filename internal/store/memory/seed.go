package memory

import (
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
)

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD, SEED_USER_PASSWORD and SEED_VIEWER_PASSWORD; unset
// values fall back to dev defaults with a warning. Postgres deployments never
// see these accounts.
func seedUsers(s *Store) {
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" || os.Getenv("SEED_VIEWER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_USER_PASSWORD and SEED_VIEWER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     domain.Role
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"operator", envOr("SEED_USER_PASSWORD", "operator123"), domain.RoleUser},
		{"viewer", envOr("SEED_VIEWER_PASSWORD", "viewer123"), domain.RoleViewer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			ID:        "usr-" + u.username,
			Username:  u.username,
			Email:     u.username + "@filmtrack.local",
			Password:  string(hash),
			Role:      u.role,
			CreatedAt: now,
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small plant catalogue. Opening balances are
// written as ledger entries so counters and ledger agree from the start.
func NewSeeded() *Store {
	s := New()
	seedUsers(s)

	now := time.Now().UTC()
	materials := []struct {
		material domain.Material
		opening  string
	}{
		{domain.Material{ID: "mat-pe-granule", Name: "PE Granül", Code: "HAM001", Unit: "kg", UnitPrice: dec("48.50"), MinStockLevel: dec("500")}, "2500"},
		{domain.Material{ID: "mat-additive-a", Name: "Katkı A", Code: "KAT001", Unit: "kg", UnitPrice: dec("120"), MinStockLevel: dec("50")}, "300"},
		{domain.Material{ID: "mat-additive-b", Name: "Katkı B", Code: "KAT002", Unit: "kg", UnitPrice: dec("95"), MinStockLevel: dec("25")}, "150"},
		{domain.Material{ID: "mat-gas", Name: "Doğalgaz", Code: "GAZ001", Unit: "kg", UnitPrice: dec("12.75"), MinStockLevel: dec("200")}, "1000"},
		{domain.Material{ID: "mat-color-blue", Name: "Mavi Boya", Code: "BOY001", Unit: "kg", UnitPrice: dec("210"), MinStockLevel: dec("10")}, "40"},
		{domain.Material{ID: "mat-spool-100", Name: string(domain.Spool100), Code: "MAS100", Unit: "adet", UnitPrice: dec("6"), MinStockLevel: dec("100")}, "800"},
		{domain.Material{ID: "mat-spool-120", Name: string(domain.Spool120), Code: "MAS120", Unit: "adet", UnitPrice: dec("7"), MinStockLevel: dec("100")}, "600"},
		{domain.Material{ID: "mat-spool-150", Name: string(domain.Spool150), Code: "MAS150", Unit: "adet", UnitPrice: dec("8.5"), MinStockLevel: dec("100")}, "400"},
		{domain.Material{ID: "mat-spool-200", Name: string(domain.Spool200), Code: "MAS200", Unit: "adet", UnitPrice: dec("11"), MinStockLevel: dec("50")}, "50"},
	}
	for _, seed := range materials {
		m := seed.material
		m.CreatedAt = now
		s.materials[m.ID] = m
		if _, err := s.appendLocked(domain.StockTransaction{
			MaterialID: m.ID,
			Quantity:   dec(seed.opening),
			Reference:  "opening balance",
			CreatedBy:  "system",
			CreatedAt:  now,
		}, store.LedgerOptions{}); err != nil {
			log.Fatalf("[memory-store] failed to seed opening balance for %s: %v", m.Code, err)
		}
	}

	s.products["prd-stretch-17"] = domain.Product{
		ID:           "prd-stretch-17",
		Name:         "Streç Film 17mic",
		Code:         "STR017",
		Unit:         "rulo",
		CurrentStock: decimal.Zero,
		CreatedAt:    now,
	}
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
