package account

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithNamesAndProxies(t *testing.T) {
	dir := t.TempDir()
	src := Source{
		KeysFile:    write(t, dir, "keys.txt", "0xaaa\n\n  0xbbb  \n# old\n0xccc\n"),
		NamesFile:   write(t, dir, "names.txt", "alice\nbob\ncarol\n"),
		ProxiesFile: write(t, dir, "proxies.txt", "u:p@1.1.1.1:80\nu:p@2.2.2.2:80\n"),
		UseNames:    true,
	}

	accounts, err := Load(src)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, Account{ID: "bob", PrivateKey: "0xbbb", Proxy: "u:p@2.2.2.2:80"}, accounts[1])
	assert.Equal(t, "u:p@1.1.1.1:80", accounts[2].Proxy)
	assert.Equal(t, "carol", accounts[2].String())
}

func TestLoadGeneratesIDs(t *testing.T) {
	dir := t.TempDir()
	accounts, err := Load(Source{KeysFile: write(t, dir, "keys.txt", "k1\nk2\n")})
	require.NoError(t, err)
	assert.Equal(t, "1", accounts[0].ID)
	assert.Equal(t, "2", accounts[1].ID)
	assert.Empty(t, accounts[0].Proxy)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	keys := write(t, dir, "keys.txt", "k1\nk2\n")

	_, err := Load(Source{KeysFile: write(t, dir, "empty.txt", "\n")})
	require.ErrorIs(t, err, ErrNoKeys)

	_, err = Load(Source{KeysFile: keys, NamesFile: filepath.Join(dir, "missing.txt"), UseNames: true})
	require.ErrorIs(t, err, ErrNoNames)

	_, err = Load(Source{KeysFile: keys, NamesFile: write(t, dir, "names.txt", "only-one\n"), UseNames: true})
	require.ErrorIs(t, err, ErrNameCountMismatch)

	_, err = Load(Source{KeysFile: filepath.Join(dir, "nope.txt")})
	require.Error(t, err)
}

func TestShuffleKeepsMembers(t *testing.T) {
	accounts := []Account{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	Shuffle(accounts)
	ids := map[string]bool{}
	for _, a := range accounts {
		ids[a.ID] = true
	}
	assert.Len(t, ids, 4)
}
