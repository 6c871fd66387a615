package alerts

import (
	"context"
	"strings"
	"testing"
)

// Logic-level tests only; insert/query paths need a live Postgres and are
// exercised by the service.

func TestCreate_RejectsInvalidType(t *testing.T) {
	store := NewStore(nil)

	err := store.Create(context.Background(), &Alert{
		MessageID: "m1",
		UserID:    "u1",
		Type:      "made_up_type",
	})
	if err == nil {
		t.Fatal("Create accepted an invalid alert type")
	}
	if !strings.Contains(err.Error(), "invalid type") {
		t.Errorf("err = %v, want invalid type rejection", err)
	}
}

func TestValidTypes(t *testing.T) {
	for _, typ := range []string{"high_risk_content", "processing_error", "processing_timeout", "signal_error"} {
		if !validTypes[typ] {
			t.Errorf("type %q not accepted", typ)
		}
	}
	if validTypes[""] {
		t.Error("empty type accepted")
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("embedded migrations: %d up, %d down, want matched non-zero pairs", ups, downs)
	}
}
