package httpprobe

import (
	"testing"

	"github.com/reconscan/reconscan/internal/config"
)

func TestClient_GetLimiter_SameHostReturnsSameInstance(t *testing.T) {
	c := NewClient(config.Defaults())
	defer c.Close()

	a := c.GetLimiter("example.com")
	b := c.GetLimiter("example.com")
	if a != b {
		t.Fatal("expected same limiter instance for repeated host")
	}

	other := c.GetLimiter("other.example.com")
	if other == a {
		t.Fatal("expected distinct limiters for distinct hosts")
	}
}
