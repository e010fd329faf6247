// Package account reads wallets from plain text files: one private key per line, with
// optional parallel files of names and proxies.
package account

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNoKeys            = errors.New("no private keys imported")
	ErrNoNames           = errors.New("account names are enabled but the names file is empty")
	ErrNameCountMismatch = errors.New("account names count must equal private keys count")
)

// Account is one wallet. Proxy is empty for direct connections.
type Account struct {
	ID         string
	PrivateKey string
	Proxy      string
}

// String never prints the key.
func (a Account) String() string { return a.ID }

type Source struct {
	KeysFile    string
	NamesFile   string
	ProxiesFile string
	// UseNames takes IDs from NamesFile; otherwise IDs are 1, 2, 3...
	UseNames bool
}

// Load reads and pairs the files. Proxies are handed out round-robin when there are
// fewer proxies than keys.
func Load(src Source) ([]Account, error) {
	keys, err := ReadLines(src.KeysFile)
	if err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	var names []string
	if src.UseNames {
		names, err = ReadLines(src.NamesFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read names: %w", err)
		}
		if len(names) == 0 {
			return nil, ErrNoNames
		}
		if len(names) != len(keys) {
			return nil, fmt.Errorf("%w: %d names, %d keys", ErrNameCountMismatch, len(names), len(keys))
		}
	}

	var proxies []string
	if src.ProxiesFile != "" {
		proxies, err = ReadLines(src.ProxiesFile)
		if err != nil {
			return nil, fmt.Errorf("read proxies: %w", err)
		}
	}

	accounts := make([]Account, len(keys))
	for i, key := range keys {
		id := strconv.Itoa(i + 1)
		if src.UseNames {
			id = names[i]
		}
		accounts[i] = Account{ID: id, PrivateKey: key}
		if len(proxies) > 0 {
			accounts[i].Proxy = proxies[i%len(proxies)]
		}
	}
	return accounts, nil
}

// ReadLines returns trimmed non-empty lines, skipping # comments.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// Shuffle reorders accounts in place.
func Shuffle(accounts []Account) {
	rand.Shuffle(len(accounts), func(i, j int) {
		accounts[i], accounts[j] = accounts[j], accounts[i]
	})
}
