package card

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zesik/felicatool/internal/comm"
	"github.com/zesik/felicatool/internal/felica/record"
)

const (
	DumpDevicePath = "dump"
	dumpProduct    = "FeliCa dump reader"
	dumpPollEvery  = 500 * time.Millisecond
)

// Dump is a card image. Service keys are hex codes such as "0x090f", and
// blocks are listed in the order the card returns them, most recent first.
type Dump struct {
	IDm      string              `yaml:"idm"`
	Type     string              `yaml:"type"`
	Product  string              `yaml:"product"`
	Services map[string][]string `yaml:"services"`
}

type dumpTag struct {
	idm      []byte
	tagType  string
	product  string
	services map[uint16][][]byte
}

func (t *dumpTag) Identifier() []byte { return t.idm }
func (t *dumpTag) Type() string       { return t.tagType }
func (t *dumpTag) Product() string    { return t.product }

func (t *dumpTag) ReadBlock(service uint16, block int) ([]byte, error) {
	blocks := t.services[service]
	if block < 0 || block >= len(blocks) {
		return nil, ErrNoSuchBlock
	}
	return blocks[block], nil
}

// LoadDump parses a card image file.
func LoadDump(path string) (Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var d Dump
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse dump %s: %w", path, err)
	}

	idm, err := hex.DecodeString(d.IDm)
	if err != nil || len(idm) == 0 {
		return nil, fmt.Errorf("dump %s: invalid idm %q", path, d.IDm)
	}

	t := &dumpTag{
		idm:      idm,
		tagType:  d.Type,
		product:  d.Product,
		services: make(map[uint16][][]byte, len(d.Services)),
	}
	if t.tagType == "" {
		t.tagType = TypeFelica
	}

	for key, blocks := range d.Services {
		code, err := strconv.ParseUint(key, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("dump %s: invalid service code %q", path, key)
		}
		for i, b := range blocks {
			raw, err := hex.DecodeString(strings.ReplaceAll(b, " ", ""))
			if err != nil || len(raw) != record.BlockSize {
				return nil, fmt.Errorf("dump %s: service %s block %d is not %d hex bytes", path, key, i, record.BlockSize)
			}
			t.services[uint16(code)] = append(t.services[uint16(code)], raw)
		}
	}

	return t, nil
}

// DumpFrontend presents every new or modified *.yaml file of a directory
// as a card.
type DumpFrontend struct {
	dir string

	mu   sync.Mutex
	seen map[string]time.Time
}

// DumpOpener opens the dump directory for the "dump" device path and reports
// no device for any other path. Every open returns the same frontend, so a
// dump is presented once however often the reader reopens it.
func DumpOpener(dir string) Opener {
	var (
		mu sync.Mutex
		f  *DumpFrontend
	)
	return func(path string) (Frontend, error) {
		if path != DumpDevicePath {
			return nil, fmt.Errorf("%w: no driver for %s", ErrNoDevice, path)
		}

		mu.Lock()
		defer mu.Unlock()
		if f != nil {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("%w: dump directory %s", ErrNoDevice, dir)
			}
			return f, nil
		}

		opened, err := OpenDump(dir)
		if err != nil {
			return nil, err
		}
		f = opened
		return f, nil
	}
}

func OpenDump(dir string) (*DumpFrontend, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: dump directory %s", ErrNoDevice, dir)
	}
	return &DumpFrontend{dir: dir, seen: make(map[string]time.Time)}, nil
}

func (f *DumpFrontend) Device() comm.Device {
	dir := f.dir
	return comm.Device{Product: dumpProduct, Path: &dir}
}

func (f *DumpFrontend) Sense(ctx context.Context) (Tag, error) {
	ticker := time.NewTicker(dumpPollEvery)
	defer ticker.Stop()

	for {
		tag, err := f.next()
		if err != nil || tag != nil {
			return tag, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// next returns the first unseen dump in name order, or nil when there is none.
func (f *DumpFrontend) next() (Tag, error) {
	paths, err := filepath.Glob(filepath.Join(f.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if last, ok := f.seen[p]; ok && last.Equal(info.ModTime()) {
			continue
		}
		f.seen[p] = info.ModTime()

		tag, err := LoadDump(p)
		if err != nil {
			log.Errorf("skipping card dump: %s", err)
			continue
		}
		log.Debugf("presenting card dump %s", p)
		return tag, nil
	}
	return nil, nil
}

func (f *DumpFrontend) Close() error { return nil }
