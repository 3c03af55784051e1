package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readLine(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClient_EmitsLines(t *testing.T) {
	server := listenUDP(t)
	client, err := NewClient(Config{
		Enabled:    true,
		Address:    server.LocalAddr().String(),
		Prefix:     " kiosk. ",
		GlobalTags: map[string]string{"facility_tz": "Asia/Tokyo"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.True(t, client.Enabled())

	client.Count("auto_exit.closed", 3, map[string]string{"trigger": "schedule"})
	assert.Equal(t, "kiosk.auto_exit.closed:3|c|#facility_tz:Asia/Tokyo,trigger:schedule", readLine(t, server))

	client.Gauge("auto_exit.last_success_epoch", 1.5, nil)
	assert.Equal(t, "kiosk.auto_exit.last_success_epoch:1.5|g|#facility_tz:Asia/Tokyo", readLine(t, server))

	client.Timing("auth.pin.duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "kiosk.auth.pin.duration:1.5|ms|#facility_tz:Asia/Tokyo", readLine(t, server))
}

func TestClient_CloseDisables(t *testing.T) {
	server := listenUDP(t)
	client, err := NewClient(Config{Enabled: true, Address: server.LocalAddr().String()})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.False(t, client.Enabled())
	require.NoError(t, client.Close())
	client.Count("ignored", 1, nil)
}

func TestClient_NilIsNoop(t *testing.T) {
	var c *Client
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
	assert.NotPanics(t, func() {
		c.Count("x", 1, nil)
		c.Gauge("x", 1, nil)
		c.Timing("x", time.Second, nil)
	})
}

func TestNewClient_Disabled(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c, err = NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestNewClient_DialError(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestNormalizeMetricName(t *testing.T) {
	cases := map[string]string{
		" sweep/run ": "sweep_run",
		"auth..pin.":  "auth.pin",
		"a b":         "a_b",
		"bad:name|x":  "bad_name_x",
		"   ":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeMetricName(in), in)
	}
}

func TestFormatTags(t *testing.T) {
	global := map[string]string{"env": "prod", " facility ": " hq "}
	local := map[string]string{"env": "stage", "": "dropped", "department": "R&D, Labs"}

	assert.Equal(t, "|#department:R&D_ Labs,env:stage,facility:hq", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
}

func TestEncode_BlankName(t *testing.T) {
	c := &Client{prefix: "kiosk"}
	assert.Empty(t, c.encode("  ", "1", "c", nil))
	assert.Equal(t, "kiosk.x:1|c", c.encode("x", "1", "c", nil))
}
