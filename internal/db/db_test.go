package db

import (
	"context"
	"strings"
	"testing"

	"github.com/albapepper/matchstats/internal/config"
)

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), &config.Config{
		ServiceName: "Lobby-1",
		DatabaseURL: "postgres://stats@localhost:notaport/matchstats",
	})
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("err = %v, want a DATABASE_URL parse error", err)
	}
}
