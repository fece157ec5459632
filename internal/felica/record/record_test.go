package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zesik/felicatool/internal/felica/station"
)

type block struct {
	terminal, process, pass byte
	date                    uint16
	detail                  [7]byte
	serial                  uint16
	area                    byte
}

func (b block) bytes() []byte {
	raw := make([]byte, BlockSize)
	raw[0] = b.terminal
	raw[1] = b.process
	raw[3] = b.pass
	raw[4], raw[5] = byte(b.date>>8), byte(b.date)
	copy(raw[6:13], b.detail[:])
	raw[13], raw[14] = byte(b.serial>>8), byte(b.serial)
	raw[15] = b.area
	return raw
}

func testDirectory() *station.Directory {
	return station.NewDirectory(map[station.Key]station.Station{
		{Area: 0, Line: 37, Station: 10}: {Company: "東京メトロ", Line: "銀座線", Name: "渋谷"},
		{Area: 0, Line: 1, Station: 2}:   {Company: "JR東日本", Line: "東海道本線", Name: "有楽町"},
		{Area: 2, Line: 37, Station: 10}: {Company: "関西", Line: "線", Name: "駅A"},
		{Area: 9, Line: 1, Station: 2}:   {Company: "関西", Line: "線", Name: "駅B"},
	})
}

func TestDecodeHistoryExitRecord(t *testing.T) {
	raw := block{
		terminal: 0x16,
		process:  0x01,
		date:     0x2eaa,
		detail:   [7]byte{37, 10, 1, 2, 0xd2, 0x04, 0},
		serial:   42,
	}.bytes()

	h, err := NewDecoder(testDirectory()).DecodeHistory(raw)
	require.NoError(t, err)

	assert.Equal(t, raw, h.Raw)
	assert.Equal(t, "改札機", h.Terminal)
	assert.Equal(t, "改札出場", h.Process)
	assert.Equal(t, Date{Year: 2023, Month: time.May, Day: 10}, h.Date)
	assert.Nil(t, h.Time)
	require.NotNil(t, h.InStation)
	assert.Equal(t, "渋谷", h.InStation.Name)
	require.NotNil(t, h.OutStation)
	assert.Equal(t, "有楽町", h.OutStation.Name)
	assert.Equal(t, PassNone, h.CommuterPass)
	assert.Equal(t, 1234, h.Balance)
	assert.Equal(t, 42, h.Serial)
}

func TestDecodeHistoryAreaBits(t *testing.T) {
	raw := block{
		process: 0x01,
		date:    0x2eaa,
		detail:  [7]byte{37, 10, 1, 2, 0, 0, 0},
		area:    0x90,
	}.bytes()

	h, err := NewDecoder(testDirectory()).DecodeHistory(raw)
	require.NoError(t, err)
	require.NotNil(t, h.InStation)
	assert.Equal(t, "駅A", h.InStation.Name)
	require.NotNil(t, h.OutStation)
	assert.Equal(t, "駅B", h.OutStation.Name)
}

func TestDecodeHistoryEntryOnlyProcess(t *testing.T) {
	// 0x02 is a charge: entry station only.
	raw := block{process: 0x02, date: 0x2eaa, detail: [7]byte{37, 10, 1, 2, 0x10, 0x27, 0}}.bytes()

	h, err := NewDecoder(testDirectory()).DecodeHistory(raw)
	require.NoError(t, err)
	assert.Equal(t, "チャージ", h.Process)
	assert.NotNil(t, h.InStation)
	assert.Nil(t, h.OutStation)
	assert.Equal(t, 10000, h.Balance)
}

func TestDecodeHistoryTimestamped(t *testing.T) {
	// 12:34:56 packs to 0x645c
	raw := block{terminal: 0xc7, process: 0xc6, date: 0x2eaa, detail: [7]byte{0x64, 0x5c, 0, 0, 0x2c, 0x01, 0}}.bytes()

	h, err := NewDecoder(testDirectory()).DecodeHistory(raw)
	require.NoError(t, err)
	assert.Equal(t, "物販・タクシー", h.Terminal)
	assert.Equal(t, "物販", h.Process)
	require.NotNil(t, h.Time)
	assert.Equal(t, TimeOfDay{Hour: 12, Minute: 34, Second: 56}, *h.Time)
	assert.Equal(t, "12:34:56", h.Time.String())
	assert.Nil(t, h.InStation)
	assert.Nil(t, h.OutStation)
	assert.Equal(t, 300, h.Balance)
}

func TestDecodeHistoryCommuterPass(t *testing.T) {
	for pass, want := range map[byte]CommuterPass{0x03: PassIn, 0x04: PassOut, 0x00: PassNone, 0x05: PassNone} {
		raw := block{process: 0x01, pass: pass, date: 0x2eaa}.bytes()
		h, err := NewDecoder(nil).DecodeHistory(raw)
		require.NoError(t, err)
		assert.Equal(t, want, h.CommuterPass, "pass byte 0x%02x", pass)
	}
}

func TestDecodeHistoryUnknownCodes(t *testing.T) {
	raw := block{terminal: 0x99, process: 0xfe, date: 0x2eaa}.bytes()

	h, err := NewDecoder(nil).DecodeHistory(raw)
	require.NoError(t, err)
	assert.Equal(t, "0x99", h.Terminal)
	assert.Equal(t, "0xfe", h.Process)
}

func TestDecodeHistoryStationMiss(t *testing.T) {
	raw := block{process: 0x01, date: 0x2eaa, detail: [7]byte{99, 99, 98, 98}}.bytes()

	h, err := NewDecoder(testDirectory()).DecodeHistory(raw)
	require.NoError(t, err)
	assert.Nil(t, h.InStation)
	assert.Nil(t, h.OutStation)
}

func TestDecodeHistoryErrors(t *testing.T) {
	d := NewDecoder(nil)

	cases := map[string][]byte{
		"short":     make([]byte, 15),
		"long":      make([]byte, 17),
		"month 0":   block{date: 0x2e0a}.bytes(),
		"month 13":  block{date: 23<<9 | 13<<5 | 1}.bytes(),
		"day 0":     block{date: 23<<9 | 5<<5}.bytes(),
		"feb 30":    block{date: 23<<9 | 2<<5 | 30}.bytes(),
		"hour 24":   block{process: 0x46, date: 0x2eaa, detail: [7]byte{24 << 3, 0}}.bytes(),
		"second 60": block{process: 0x46, date: 0x2eaa, detail: [7]byte{0, 30}}.bytes(),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.DecodeHistory(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestDecodeHistoryRetainsCopyOfRaw(t *testing.T) {
	raw := block{process: 0x01, date: 0x2eaa}.bytes()
	h, err := NewDecoder(nil).DecodeHistory(raw)
	require.NoError(t, err)

	raw[0] = 0xff
	assert.Equal(t, byte(0x00), h.Raw[0])
	assert.Equal(t, "000100002eaa00000000000000000000", h.String())
}

func TestDecodeBalance(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xd2, 0x04, 0, 0, 0}

	b, err := DecodeBalance(raw)
	require.NoError(t, err)
	assert.Equal(t, 1234, b.Balance)
	assert.Equal(t, raw, b.Raw)

	_, err = DecodeBalance(raw[:8])
	assert.ErrorIs(t, err, ErrDecode)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2023年05月10日(水)", FormatDate(Date{Year: 2023, Month: time.May, Day: 10}))
	assert.Equal(t, "2024年12月01日(日)", FormatDate(Date{Year: 2024, Month: time.December, Day: 1}))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "VIEW ALTTE", TerminalName(0x46))
	assert.Equal(t, "自販機", TerminalName(0xc8))
	assert.Equal(t, "0x00", TerminalName(0x00))
	assert.Equal(t, "入場物販", ProcessName(0x4b))
	assert.Equal(t, "入場物販", ProcessName(0xcb))
	assert.Equal(t, "0x7e", ProcessName(0x7e))
}
