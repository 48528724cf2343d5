package iprange

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIPv4Range(t *testing.T) {
	r, err := ParseIPv4Range("127.0-4.2,3.8,9-10")
	require.NoError(t, err)
	require.Equal(t, []u8Range{{127, 127}}, r[0])
	require.Equal(t, []u8Range{{0, 4}}, r[1])
	require.Equal(t, []u8Range{{2, 2}, {3, 3}}, r[2])
	require.Equal(t, []u8Range{{8, 8}, {9, 10}}, r[3])
}

func TestIPv4TargetsCartesianProduct(t *testing.T) {
	targets, err := NewIPv4Targets("10.0.0.1-2", "9000-9001")
	require.NoError(t, err)

	var got []string
	for {
		addr, ok := targets.Next()
		if !ok {
			break
		}
		got = append(got, addr.String())
	}
	require.Len(t, got, 4)
	require.Contains(t, got, "10.0.0.1:9000")
	require.Contains(t, got, "10.0.0.1:9001")
	require.Contains(t, got, "10.0.0.2:9000")
	require.Contains(t, got, "10.0.0.2:9001")
}

func TestIPv4TargetsReset(t *testing.T) {
	targets, err := NewIPv4Targets("10.0.0.1", "9000")
	require.NoError(t, err)

	_, ok := targets.Next()
	require.True(t, ok)
	_, ok = targets.Next()
	require.False(t, ok)

	targets.Reset()
	_, ok = targets.Next()
	require.True(t, ok)
}

func TestParseIPv6RangeZeroRun(t *testing.T) {
	r, err := ParseIPv6Range("fe80::1")
	require.NoError(t, err)
	require.Equal(t, []u16Range{{0xfe80, 0xfe80}}, r[0])
	for i := 1; i < 6; i++ {
		require.Equal(t, []u16Range{{0, 0}}, r[i])
	}
	require.Equal(t, []u16Range{{1, 1}}, r[7])
}

func TestIPv6Targets(t *testing.T) {
	targets, err := NewIPv6Targets("::1", "53")
	require.NoError(t, err)
	addr, ok := targets.Next()
	require.True(t, ok)
	udp, ok := addr.(*net.UDPAddr)
	require.True(t, ok)
	require.Equal(t, net.ParseIP("::1"), udp.IP)
	require.Equal(t, 53, udp.Port)

	_, ok = targets.Next()
	require.False(t, ok)
}

func TestParseTargetsDispatch(t *testing.T) {
	t4, err := ParseTargets("127.0.0.1", "1234")
	require.NoError(t, err)
	a, ok := t4.Next()
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:1234", a.String())

	t6, err := ParseTargets("::1", "1234")
	require.NoError(t, err)
	_, ok = t6.Next()
	require.True(t, ok)
}
