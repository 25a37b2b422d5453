package printer

import (
	"net"
	"testing"
	"time"

	"github.com/john/flashforge/ffp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDedupes(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	scanner := ffp.NewScanner(conn, 300*time.Millisecond)
	defer scanner.Close()

	send := func(payload []byte) {
		c, err := net.Dial("udp4", conn.LocalAddr().String())
		require.NoError(t, err)
		defer c.Close()
		_, err = c.Write(payload)
		require.NoError(t, err)
	}
	name := make([]byte, 128)
	copy(name, "Adventurer3")
	send(name)
	send([]byte{0xff, 0x00})
	send(name)

	printers, err := collect(scanner)
	require.NoError(t, err)
	require.Len(t, printers, 1)
	assert.Equal(t, DiscoveredPrinter{IP: "127.0.0.1", Name: "Adventurer3"}, printers[0])
}
