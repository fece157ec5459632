package station

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Station is a place name resolved from an (area, line, station) triple.
type Station struct {
	Company string `json:"company"`
	Line    string `json:"line"`
	Name    string `json:"station"`
}

type Key struct {
	Area    int
	Line    int
	Station int
}

// Directory is a read-only lookup table. It is never mutated after
// construction, so concurrent lookups need no locking.
type Directory struct {
	stations map[Key]Station
}

const columns = 6

func NewDirectory(stations map[Key]Station) *Directory {
	d := &Directory{stations: make(map[Key]Station, len(stations))}
	for k, v := range stations {
		d.stations[k] = v
	}
	return d
}

// Load builds a directory from a comma delimited file with the columns
// area, line, station, company, line name, station name.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station data: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func Read(r io.Reader) (*Directory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	d := &Directory{stations: make(map[Key]Station)}
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("station data row %d: %w", row, err)
		}
		if len(rec) < columns {
			return nil, fmt.Errorf("station data row %d: expected %d columns, got %d", row, columns, len(rec))
		}

		var key Key
		for i, dst := range []*int{&key.Area, &key.Line, &key.Station} {
			v, err := strconv.Atoi(rec[i])
			if err != nil {
				return nil, fmt.Errorf("station data row %d column %d: %w", row, i+1, err)
			}
			*dst = v
		}

		d.stations[key] = Station{
			Company: rec[3],
			Line:    rec[4],
			Name:    rec[5],
		}
	}

	return d, nil
}

// Lookup returns nil, false for unknown keys and for a nil directory.
func (d *Directory) Lookup(area, line, station int) (*Station, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.stations[Key{Area: area, Line: line, Station: station}]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.stations)
}
