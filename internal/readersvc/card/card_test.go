package card

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dumpYAML = `idm: 0123456789ABCDEF
product: FeliCa Standard
services:
  "0x008b":
    - "00 00 00 00 00 00 00 00 00 00 00 d2 04 00 00 00"
  "0x090f":
    - "160100002eaa0101010290010000030000"
    - "16 01 00 00 2e aa 01 01 01 02 20 03 00 00 02 00"
`

func writeDump(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDump(t *testing.T) {
	dir := t.TempDir()
	content := `idm: 0123456789ABCDEF
product: FeliCa Standard
services:
  "0x008b":
    - "00 00 00 00 00 00 00 00 00 00 00 d2 04 00 00 00"
  "0x090f":
    - "160100002eaa01010102900100000300"
    - "16 01 00 00 2e aa 01 01 01 02 20 03 00 00 02 00"
`
	tag, err := LoadDump(writeDump(t, dir, "a.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}, tag.Identifier())
	assert.Equal(t, TypeFelica, tag.Type())
	assert.Equal(t, "FeliCa Standard", tag.Product())

	balance, err := ReadAllBlocks(tag, ServiceBalance)
	require.NoError(t, err)
	require.Len(t, balance, 1)
	assert.Equal(t, byte(0xd2), balance[0][11])

	hist, err := ReadAllBlocks(tag, ServiceHistory)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, byte(0x03), hist[0][14])

	none, err := ReadAllBlocks(tag, ServiceInOut)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadDumpRejectsShortBlocks(t *testing.T) {
	// the first history block of dumpYAML is 17 bytes long
	_, err := LoadDump(writeDump(t, t.TempDir(), "bad.yaml", dumpYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 0")
}

type failingTag struct{ *dumpTag }

func (failingTag) ReadBlock(uint16, int) ([]byte, error) {
	return nil, errors.New("timeout")
}

func TestReadAllBlocksPropagatesErrors(t *testing.T) {
	_, err := ReadAllBlocks(failingTag{}, ServiceHistory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x090f")
}

func TestDumpOpener(t *testing.T) {
	dir := t.TempDir()
	open := DumpOpener(dir)

	_, err := open("usb")
	assert.ErrorIs(t, err, ErrNoDevice)

	f, err := open(DumpDevicePath)
	require.NoError(t, err)
	assert.Equal(t, dumpProduct, f.Device().Product)

	_, err = DumpOpener(filepath.Join(dir, "missing"))(DumpDevicePath)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestDumpFrontendSense(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenDump(dir)
	require.NoError(t, err)

	good := `idm: "01"
services:
  "0x008b":
    - "00000000000000000000000000000000"
`
	writeDump(t, dir, "card.yaml", good)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tag, err := f.Sense(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, tag.Identifier())

	// the same unchanged dump is not presented twice
	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	_, err = f.Sense(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDumpOpenerPresentsEachDumpOnce(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "a.yaml", "idm: \"0a\"\n")
	writeDump(t, dir, "b.yaml", "idm: \"0b\"\n")
	open := DumpOpener(dir)

	var ids [][]byte
	for i := 0; i < 3; i++ {
		f, err := open(DumpDevicePath)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		tag, err := f.Sense(ctx)
		cancel()
		require.NoError(t, f.Close())
		if err == nil {
			ids = append(ids, tag.Identifier())
		}
	}
	assert.Equal(t, [][]byte{{0x0a}, {0x0b}}, ids)

	// a modified dump counts as a new presentation
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.yaml"), later, later))
	f, err := open(DumpDevicePath)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tag, err := f.Sense(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a}, tag.Identifier())
}
