package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", 50*time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected token to be revoked, revoked=%v err=%v", revoked, err)
	}
	time.Sleep(60 * time.Millisecond)
	revoked, err = r.IsRevoked("jti-1")
	if err != nil || revoked {
		t.Fatalf("expected revocation to expire, revoked=%v err=%v", revoked, err)
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-2", 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked("jti-2"); revoked {
		t.Fatalf("zero ttl revoke should be a no-op")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	r := NewRedisTokenRevoker(redisSrv.Addr(), "")
	if err := r.Revoke("jti-3", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-3")
	if err != nil || !revoked {
		t.Fatalf("expected token to be revoked, revoked=%v err=%v", revoked, err)
	}
	if revoked, _ := r.IsRevoked("jti-other"); revoked {
		t.Fatalf("unrelated token should not be revoked")
	}
}
