package sigshell

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// DLT identifies the link-layer framing a dumped PDU should be tagged
// with, matching the libpcap LINKTYPE_* values spec.md §4.7 names.
type DLT uint32

const (
	DLTMTP2 DLT = 140 // LINKTYPE_MTP2
	DLTMTP3 DLT = 141 // LINKTYPE_MTP3
	DLTSCCP DLT = 142 // LINKTYPE_SCCP
	DLTQ931 DLT = 177 // LINKTYPE_Q931
)

const (
	pcapMagic      = 0xa1b2c3d4
	pcapVersionMaj = 2
	pcapVersionMin = 4
	pcapSnapLen    = 65535
)

// Dumper serializes raw PDUs crossing a Component, either to a
// libpcap-format file (for offline analysis with standard tooling) or as
// a plain hex dump. There is no live capture here — spec.md §1 excludes
// driver/transport code from this package's scope, so a Dumper only
// wraps bytes a caller already has in hand.
type Dumper struct {
	w     io.Writer
	dlt   DLT
	hex   bool
	wrote bool
}

// NewPcapDumper writes pcapLinktype-framed records to w, emitting the
// global file header before the first PDU.
func NewPcapDumper(w io.Writer, dlt DLT) *Dumper {
	return &Dumper{w: w, dlt: dlt}
}

// NewHexDumper writes each PDU as a timestamped hex line to w instead of
// binary pcap framing, for quick human inspection.
func NewHexDumper(w io.Writer, dlt DLT) *Dumper {
	return &Dumper{w: w, dlt: dlt, hex: true}
}

// Write records one PDU observed at tsUs (microseconds since the Unix
// epoch, matching internal/clock's convention).
func (d *Dumper) Write(tsUs int64, pdu []byte) error {
	if d.hex {
		_, err := fmt.Fprintf(d.w, "%d.%06d dlt=%d len=%d %s\n",
			tsUs/1_000_000, tsUs%1_000_000, d.dlt, len(pdu), hex.EncodeToString(pdu))
		return err
	}
	if !d.wrote {
		if err := d.writeGlobalHeader(); err != nil {
			return err
		}
		d.wrote = true
	}
	return d.writeRecord(tsUs, pdu)
}

// writeGlobalHeader emits a classic pcap file header. DLT framing is
// recorded per-Dumper, not per-record: a single Dumper instance only
// ever tags one link type, matching how libpcap files work.
func (d *Dumper) writeGlobalHeader() error {
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapVersionMaj)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapVersionMin)
	binary.LittleEndian.PutUint32(hdr[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(d.dlt))
	_, err := d.w.Write(hdr[:])
	return err
}

func (d *Dumper) writeRecord(tsUs int64, pdu []byte) error {
	var rec [16]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(tsUs/1_000_000))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(tsUs%1_000_000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(pdu)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(pdu)))
	if _, err := d.w.Write(rec[:]); err != nil {
		return err
	}
	_, err := d.w.Write(pdu)
	return err
}
