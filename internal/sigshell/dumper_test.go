package sigshell

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexDumperWritesOneLinePerPDU(t *testing.T) {
	var buf bytes.Buffer
	d := NewHexDumper(&buf, DLTQ931)

	require.NoError(t, d.Write(1_500_000, []byte{0x01, 0x02, 0xff}))
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "1.500000 "))
	assert.Contains(t, line, "dlt=177")
	assert.Contains(t, line, "0102ff")
}

func TestPcapDumperWritesGlobalHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	d := NewPcapDumper(&buf, DLTMTP2)

	require.NoError(t, d.Write(0, []byte{0xaa}))
	require.NoError(t, d.Write(1000, []byte{0xbb, 0xcc}))

	data := buf.Bytes()
	require.GreaterOrEqual(t, len(data), 24)
	assert.Equal(t, uint32(pcapMagic), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(DLTMTP2), binary.LittleEndian.Uint32(data[20:24]))

	rec1 := data[24 : 24+16]
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(rec1[8:12]))

	rec2Offset := 24 + 16 + 1
	rec2 := data[rec2Offset : rec2Offset+16]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(rec2[8:12]))
}
