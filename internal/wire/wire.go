// Package wire implements the on-the-wire encoding and validation of RIP-like
// response messages (spec §4.2, §9 "Wire format").
//
// The source relies on a self-describing object-graph serializer; this
// implementation instead defines an explicit, versioned binary framing: a
// fixed header followed by a length-prefixed array of fixed-width entries.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/framie/ripd/internal/table"
)

// Version is the only wire version this daemon speaks.
const Version = 2

// TypeResponse is the only message type this daemon speaks.
const TypeResponse = 1

// MaxDatagramSize bounds an encoded message to one UDP datagram (spec §4.2).
const MaxDatagramSize = 1024

const headerSize = 2 + 1 + 1 + 2 // sender_id, version, type, entry_count
const entrySize = 2 + 2 + 1 + 2 + 1 + 8 // dest_id, port, weight, next_hop, update_flag, last_refreshed

// maxEntries is the largest entry count headerSize+n*entrySize can still fit
// within MaxDatagramSize.
const maxEntries = (MaxDatagramSize - headerSize) / entrySize

// Entry is one destination's route as carried on the wire.
type Entry struct {
	Dest          table.RouterID
	Port          table.Port
	Weight        table.Metric
	NextHop       table.Port
	UpdateFlag    uint8
	LastRefreshed float64 // transmitted but ignored by the receiver, per spec §6
}

// Message is a single RIP-like response advertisement.
type Message struct {
	SenderID table.RouterID
	Version  uint8
	Type     uint8
	Entries  []Entry
}

// ErrTooManyEntries is returned by Encode when a message would not fit in
// one datagram.
var ErrTooManyEntries = errors.New("wire: too many entries for one datagram")

// ErrShortBuffer is returned by Decode when the input is truncated.
var ErrShortBuffer = errors.New("wire: buffer too short")

// ErrDatagramTooLarge is returned by Decode when the input exceeds MaxDatagramSize.
var ErrDatagramTooLarge = errors.New("wire: datagram exceeds max size")

// Encode serializes m into its binary wire form.
func Encode(m Message) ([]byte, error) {
	if len(m.Entries) > maxEntries {
		return nil, ErrTooManyEntries
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(m.Entries)*entrySize)

	binary.Write(&buf, binary.BigEndian, uint16(m.SenderID))
	buf.WriteByte(m.Version)
	buf.WriteByte(m.Type)
	binary.Write(&buf, binary.BigEndian, uint16(len(m.Entries)))

	for _, e := range m.Entries {
		binary.Write(&buf, binary.BigEndian, uint16(e.Dest))
		binary.Write(&buf, binary.BigEndian, uint16(e.Port))
		buf.WriteByte(uint8(e.Weight))
		binary.Write(&buf, binary.BigEndian, uint16(e.NextHop))
		buf.WriteByte(e.UpdateFlag)
		binary.Write(&buf, binary.BigEndian, e.LastRefreshed)
	}

	if buf.Len() > MaxDatagramSize {
		return nil, ErrTooManyEntries
	}
	return buf.Bytes(), nil
}

// Decode parses a wire-format datagram. It performs no range validation;
// call Verify on the result before trusting it (spec §4.2).
func Decode(b []byte) (Message, error) {
	if len(b) > MaxDatagramSize {
		return Message{}, ErrDatagramTooLarge
	}
	if len(b) < headerSize {
		return Message{}, ErrShortBuffer
	}

	r := bytes.NewReader(b)
	var m Message
	var senderID, count uint16

	binary.Read(r, binary.BigEndian, &senderID)
	m.SenderID = table.RouterID(senderID)

	var ver, typ byte
	binary.Read(r, binary.BigEndian, &ver)
	binary.Read(r, binary.BigEndian, &typ)
	m.Version = ver
	m.Type = typ

	binary.Read(r, binary.BigEndian, &count)
	if int(count) > maxEntries {
		return Message{}, fmt.Errorf("wire: entry count %d exceeds maximum %d", count, maxEntries)
	}
	if headerSize+int(count)*entrySize != len(b) {
		return Message{}, ErrShortBuffer
	}

	m.Entries = make([]Entry, count)
	for i := range m.Entries {
		var dest, port, nextHop uint16
		var weight, flag byte
		var lastRefreshed float64

		binary.Read(r, binary.BigEndian, &dest)
		binary.Read(r, binary.BigEndian, &port)
		binary.Read(r, binary.BigEndian, &weight)
		binary.Read(r, binary.BigEndian, &nextHop)
		binary.Read(r, binary.BigEndian, &flag)
		binary.Read(r, binary.BigEndian, &lastRefreshed)

		m.Entries[i] = Entry{
			Dest:          table.RouterID(dest),
			Port:          table.Port(port),
			Weight:        table.Metric(weight),
			NextHop:       table.Port(nextHop),
			UpdateFlag:    flag,
			LastRefreshed: lastRefreshed,
		}
	}
	return m, nil
}

// Verify checks m against the structural and range constraints of spec §4.2.
// A false result means the datagram must be silently discarded.
func Verify(m Message) bool {
	if m.SenderID < 1 || m.SenderID > 64000 {
		return false
	}
	if m.Version != Version || m.Type != TypeResponse {
		return false
	}
	for _, e := range m.Entries {
		if e.Dest < 1 || e.Dest > 64000 {
			return false
		}
		if e.Port < 1024 || e.Port > 64000 {
			return false
		}
		if e.Weight < 1 || e.Weight > 16 {
			return false
		}
		if e.NextHop < 1024 || e.NextHop > 64000 {
			return false
		}
		if e.UpdateFlag != 0 && e.UpdateFlag != 1 {
			return false
		}
	}
	return true
}
