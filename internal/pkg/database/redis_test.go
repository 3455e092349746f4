package database_test

import (
	"testing"

	"github.com/helpmaton/billing-api/internal/pkg/database"
)

func TestNewRedisRejectsEmptyURL(t *testing.T) {
	client, err := database.NewRedis("")
	if err == nil {
		t.Fatal("empty redis url must be rejected")
	}
	if client != nil {
		t.Fatal("no client must be returned on error")
	}
}

func TestNewRedisRejectsMalformedURL(t *testing.T) {
	if _, err := database.NewRedis("localhost:6379"); err == nil {
		t.Fatal("url without redis scheme must be rejected")
	}
}
