// FILE: logkeep/src/internal/netlimit/limiter_test.go
package netlimit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logkeep/src/internal/config"

	"github.com/lixenwraith/log"
)

func newTestLimiter(t *testing.T, cfg *config.NetLimitConfig) *Limiter {
	t.Helper()
	logger := log.NewLogger()
	l := New(cfg, logger)
	if l != nil {
		t.Cleanup(l.Shutdown)
	}
	return l
}

func TestDisabledLimiterIsNil(t *testing.T) {
	assert.Nil(t, newTestLimiter(t, nil))
	assert.Nil(t, newTestLimiter(t, &config.NetLimitConfig{Enabled: false}))
	assert.Nil(t, newTestLimiter(t, &config.NetLimitConfig{Enabled: true, RequestsPerSecond: 0}))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Check("10.0.0.1:1234"))
	assert.False(t, l.GetStats()["enabled"].(bool))
	l.Shutdown()
}

func TestBurstThenBlock(t *testing.T) {
	l := newTestLimiter(t, &config.NetLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             3,
	})
	require.NotNil(t, l)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Check("10.0.0.1:1234"), "request %d within burst", i)
	}
	assert.False(t, l.Check("10.0.0.1:1234"))

	stats := l.GetStats()
	assert.Equal(t, uint64(4), stats["total_requests"])
	assert.Equal(t, uint64(1), stats["blocked_requests"])
}

func TestClientsAreIndependent(t *testing.T) {
	l := newTestLimiter(t, &config.NetLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	})
	require.NotNil(t, l)

	assert.True(t, l.Check("10.0.0.1:1000"))
	assert.False(t, l.Check("10.0.0.1:2000"), "same IP, different port")
	assert.True(t, l.Check("10.0.0.2:1000"), "different IP gets its own bucket")
}

func TestUnparseableAddrIsAllowed(t *testing.T) {
	l := newTestLimiter(t, &config.NetLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	})
	require.NotNil(t, l)

	assert.True(t, l.Check("not an address"))
	assert.True(t, l.Check("not an address"))
}

func TestMaxClientsEviction(t *testing.T) {
	l := newTestLimiter(t, &config.NetLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 100,
		Burst:             100,
		MaxClients:        5,
	})
	require.NotNil(t, l)

	for i := 0; i < 20; i++ {
		l.Check(fmt.Sprintf("10.0.0.%d:1234", i))
	}

	stats := l.GetStats()
	assert.LessOrEqual(t, stats["active_ips"].(int), 5)
}

func TestExtractIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", extractIP("10.0.0.1:8080"))
	assert.Equal(t, "10.0.0.1", extractIP("10.0.0.1"))
	assert.Equal(t, "::1", extractIP("[::1]:8080"))
	assert.Equal(t, "", extractIP("garbage"))
}
