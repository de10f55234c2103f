package dumplog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/stretchr/testify/require"
)

func ev(method, params string) dumplog.Event {
	return dumplog.Event{Method: method, Params: json.RawMessage(params)}
}

func TestOnExitBuffersAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	log := dumplog.New(dumplog.OnExit, path)

	require.NoError(t, log.Record(ev("devnet_mint", `{"address":"0x1","amount":1}`)))
	require.NoError(t, log.Record(ev("devnet_createBlock", "")))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "OnExit must not touch the file before Flush")

	require.NoError(t, log.Flush(""))

	loaded, err := dumplog.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "devnet_mint", loaded[0].Method)
	require.Equal(t, "devnet_createBlock", loaded[1].Method)
}

func TestOnBlockAppendsPerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	log := dumplog.New(dumplog.OnBlock, path)

	require.NoError(t, log.Record(ev("devnet_mint", `{"address":"0x1","amount":1}`)))
	loaded, err := dumplog.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	require.NoError(t, log.Record(ev("devnet_mint", `{"address":"0x2","amount":2}`)))
	loaded, err = dumplog.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2, "append must extend the existing array in place")
}

func TestAppendRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"`), 0o644))

	log := dumplog.New(dumplog.OnBlock, path)
	err := log.Record(ev("devnet_mint", `{}`))
	require.ErrorIs(t, err, dumplog.ErrFormat)
}

func TestLoadFileRejectsNonArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"method":"devnet_mint"}`), 0o644))

	_, err := dumplog.LoadFile(path)
	require.ErrorIs(t, err, dumplog.ErrFormat)
}

func TestDeleteAfterLoadTolerantOfMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))
	require.NoError(t, dumplog.DeleteAfterLoad(path))
	require.NoError(t, dumplog.DeleteAfterLoad(path), "double delete is fine")
}

func TestRoundTripPreservesParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.json")
	log := dumplog.New(dumplog.OnBlock, path)

	original := `{"address":"0x1","amount":1000,"unit":"WEI"}`
	require.NoError(t, log.Record(ev("devnet_mint", original)))

	loaded, err := dumplog.LoadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, original, string(loaded[0].Params))
}
