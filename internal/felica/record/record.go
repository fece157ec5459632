package record

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zesik/felicatool/internal/felica/station"
)

// BlockSize is the size of one card storage block and of one log line's payload.
const BlockSize = 16

type CommuterPass string

const (
	PassNone CommuterPass = ""
	PassIn   CommuterPass = "in"
	PassOut  CommuterPass = "out"
)

// StationLookup resolves station codes. *station.Directory implements it.
type StationLookup interface {
	Lookup(area, line, station int) (*station.Station, bool)
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Weekday is computed on the proleptic Gregorian calendar.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

type Balance struct {
	Raw     []byte
	Balance int
}

func (b Balance) String() string {
	return hex.EncodeToString(b.Raw)
}

// History is one decoded entry of the history area. It is immutable once
// returned by the decoder; session annotations live in history.Entry.
type History struct {
	Raw          []byte
	Terminal     string
	Process      string
	Date         Date
	Time         *TimeOfDay
	InStation    *station.Station
	OutStation   *station.Station
	CommuterPass CommuterPass
	Balance      int
	Serial       int
}

func (h History) String() string {
	return hex.EncodeToString(h.Raw)
}

// DecodeBalance decodes a block of the balance area. The block is laid out
// big-endian as I I B H B B B H; the balance sits little-endian in the first
// two of the three single bytes.
func DecodeBalance(raw []byte) (Balance, error) {
	if len(raw) != BlockSize {
		return Balance{}, lengthError("balance", len(raw))
	}
	return Balance{
		Raw:     clone(raw),
		Balance: int(raw[11]) | int(raw[12])<<8,
	}, nil
}

type Decoder struct {
	stations StationLookup
}

// NewDecoder returns a decoder resolving stations through the given lookup.
// A nil lookup resolves every station to none.
func NewDecoder(stations StationLookup) *Decoder {
	return &Decoder{stations: stations}
}

// history block offsets
const (
	offTerminal = 0
	offProcess  = 1
	offPass     = 3
	offDate     = 4
	offDetail   = 6
	offSerial   = 13
	offArea     = 15
)

// DecodeHistory decodes a block of the history area. It only reads from the
// station lookup and is safe for concurrent use.
func (d *Decoder) DecodeHistory(raw []byte) (History, error) {
	if len(raw) != BlockSize {
		return History{}, lengthError("history", len(raw))
	}

	date, err := unpackDate(binary.BigEndian.Uint16(raw[offDate:]))
	if err != nil {
		return History{}, err
	}

	h := History{
		Raw:      clone(raw),
		Terminal: TerminalName(raw[offTerminal]),
		Process:  ProcessName(raw[offProcess]),
		Date:     date,
		Serial:   int(binary.BigEndian.Uint16(raw[offSerial:])),
	}

	switch raw[offPass] {
	case 0x03:
		h.CommuterPass = PassIn
	case 0x04:
		h.CommuterPass = PassOut
	}

	detail := raw[offDetail:offSerial]
	area := raw[offArea]
	process := raw[offProcess] & processMask

	if timestamped[process] {
		t, err := unpackTime(uint16(detail[0])<<8 | uint16(detail[1]))
		if err != nil {
			return History{}, err
		}
		h.Time = &t
	}
	if entryStation[process] {
		h.InStation = d.lookup(int(area>>6), int(detail[0]), int(detail[1]))
	}
	if exitStation[process] {
		h.OutStation = d.lookup(int((area&0xf0)>>4), int(detail[2]), int(detail[3]))
	}
	h.Balance = int(detail[4]) | int(detail[5])<<8

	return h, nil
}

func (d *Decoder) lookup(area, line, code int) *station.Station {
	if d == nil || d.stations == nil {
		return nil
	}
	s, ok := d.stations.Lookup(area, line, code)
	if !ok {
		return nil
	}
	return s
}

// unpackDate reads yyyyyyym mmmddddd with the year offset from 2000.
func unpackDate(v uint16) (Date, error) {
	d := Date{
		Year:  int(v>>9) + 2000,
		Month: time.Month((v >> 5) & 0x0f),
		Day:   int(v & 0x1f),
	}
	if d.Month < time.January || d.Month > time.December {
		return Date{}, &DecodeError{Kind: "history", Reason: fmt.Sprintf("month %d out of range", d.Month)}
	}
	last := time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d.Day < 1 || d.Day > last {
		return Date{}, &DecodeError{Kind: "history", Reason: fmt.Sprintf("day %d out of range for %04d-%02d", d.Day, d.Year, int(d.Month))}
	}
	return d, nil
}

// unpackTime reads hhhhhmmm mmmsssss with seconds in two-second units.
func unpackTime(v uint16) (TimeOfDay, error) {
	t := TimeOfDay{
		Hour:   int(v >> 11),
		Minute: int((v >> 5) & 0x3f),
		Second: int(v&0x1f) * 2,
	}
	if t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return TimeOfDay{}, &DecodeError{Kind: "history", Reason: fmt.Sprintf("time %s out of range", t)}
	}
	return t, nil
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
