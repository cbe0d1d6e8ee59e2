//go:build linux

package static_test

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/legamerdc/reactor/internal/testutil"
	"github.com/legamerdc/reactor/protocols/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (string, []byte) {
	t.Helper()
	root := t.TempDir()
	data := make([]byte, 5<<20)
	rand.New(rand.NewSource(7)).Read(data)
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), data, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	return root, data
}

func fetch(t *testing.T, addr, request string) []byte {
	t.Helper()
	nc := testutil.Dial(t, addr)
	_, err := io.WriteString(nc, request)
	require.NoError(t, err)
	got, err := io.ReadAll(nc)
	require.NoError(t, err)
	return got
}

func TestStaticWholeFile(t *testing.T) {
	root, data := setup(t)
	srv, addr := testutil.Serve(t, static.New(root))
	got := fetch(t, addr, "blob.bin\n")
	assert.True(t, bytes.Equal(data, got), "got %d bytes", len(got))
	require.Eventually(t, func() bool { return srv.Count() == 0 }, 5*time.Second, time.Millisecond)
}

func TestStaticRangeClamped(t *testing.T) {
	root, data := setup(t)
	_, addr := testutil.Serve(t, static.New(root))

	assert.Equal(t, data[100:164], fetch(t, addr, "/blob.bin 100 64\n"))
	assert.Equal(t, data[len(data)-10:], fetch(t, addr, "blob.bin "+strconv.Itoa(len(data)-10)+" 999999\n"))
}

func TestStaticErrors(t *testing.T) {
	root, _ := setup(t)
	_, addr := testutil.Serve(t, static.New(root))

	for _, req := range []string{
		"missing.bin\n",
		"sub\n",
		"blob.bin 999999999\n",
		"../etc/passwd\n",
		"blob.bin x\n",
		"\n",
	} {
		got := string(fetch(t, addr, req))
		assert.Regexp(t, `^ERR .+\n$`, got, "request %q", req)
	}
}
