package comm

import (
	"encoding/json"

	"github.com/zesik/felicatool/internal/felica/history"
	"github.com/zesik/felicatool/internal/felica/record"
	"github.com/zesik/felicatool/internal/felica/station"
)

// message types
const (
	TypeHardware = "hardware"
	TypeFelica   = "felica"
	TypeStatus   = "status"
	TypeError    = "error"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "hardware", "felica"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

type Device struct {
	Product string  `json:"product"`
	Path    *string `json:"path"`
}

type HardwareStatus struct {
	Device *Device `json:"device"`
	Status string  `json:"status"`
}

type StationInfo struct {
	Company string `json:"company"`
	Line    string `json:"line"`
	Station string `json:"station"`
}

type HistoryEntry struct {
	Raw          string       `json:"raw"`
	New          bool         `json:"new"`
	Terminal     string       `json:"terminal"`
	Process      string       `json:"process"`
	Date         string       `json:"date"`
	Time         *string      `json:"time"`
	InStation    *StationInfo `json:"in_station"`
	OutStation   *StationInfo `json:"out_station"`
	CommuterPass *string      `json:"commuter_pass"`
	Expense      *int         `json:"expense"`
	Balance      int          `json:"balance"`
	Serial       int          `json:"serial"`
}

type CardData struct {
	IDm     string         `json:"idm"`
	Balance int            `json:"balance"`
	History []HistoryEntry `json:"history"`
}

func NewHistoryEntry(e history.Entry) HistoryEntry {
	h := e.Record
	entry := HistoryEntry{
		Raw:        h.String(),
		New:        e.New,
		Terminal:   h.Terminal,
		Process:    h.Process,
		Date:       record.FormatDate(h.Date),
		InStation:  stationInfo(h.InStation),
		OutStation: stationInfo(h.OutStation),
		Expense:    e.Expense,
		Balance:    h.Balance,
		Serial:     h.Serial,
	}
	if h.Time != nil {
		t := h.Time.String()
		entry.Time = &t
	}
	if h.CommuterPass != record.PassNone {
		p := string(h.CommuterPass)
		entry.CommuterPass = &p
	}
	return entry
}

// NewCardData builds the payload pushed to clients after a card was read.
// A nil session yields an empty history.
func NewCardData(idm string, balance record.Balance, s *history.Session) CardData {
	data := CardData{
		IDm:     idm,
		Balance: balance.Balance,
		History: []HistoryEntry{},
	}
	if s == nil {
		return data
	}
	for _, e := range s.Entries {
		data.History = append(data.History, NewHistoryEntry(e))
	}
	return data
}

func stationInfo(s *station.Station) *StationInfo {
	if s == nil {
		return nil
	}
	return &StationInfo{
		Company: s.Company,
		Line:    s.Line,
		Station: s.Name,
	}
}

// Encode wraps a payload in a WSMessage of the given type.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{Type: msgType, Data: data})
}
