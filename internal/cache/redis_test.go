package cache

import "testing"

func TestVaultKeys(t *testing.T) {
	v := &RedisVault{config: &Config{KeyPrefix: "vault"}}

	if got := v.tokensKey("abc"); got != "vault:abc:tokens" {
		t.Errorf("tokensKey = %q", got)
	}
	if got := v.valuesKey("abc"); got != "vault:abc:values" {
		t.Errorf("valuesKey = %q", got)
	}
	if got := v.countersKey("abc"); got != "vault:abc:counters" {
		t.Errorf("countersKey = %q", got)
	}
}
