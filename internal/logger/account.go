package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Account logs on behalf of one wallet on one network. Every line carries the account
// id, the address and the network title.
type Account struct {
	tags Tags
	base *zap.Logger
	file *zap.Logger
}

// accountSkip hides Account.log and the exported level method from reported callers.
const accountSkip = 2

// NewAccount binds tags to the global logger. When per-account files are enabled the
// lines are also written to <dir>/log_<account>.log.
func NewAccount(tags Tags) *Account {
	return NewAccountWith(raw, tags)
}

// NewAccountWith binds tags to base instead of the global logger.
func NewAccountWith(base *zap.Logger, tags Tags) *Account {
	return &Account{tags: tags, base: base.WithOptions(zap.AddCallerSkip(accountSkip)), file: accountFile(tags.Account)}
}

// WithNetwork returns a logger for the same account on another network.
func (a *Account) WithNetwork(network string) *Account {
	cp := *a
	cp.tags.Network = network
	return &cp
}

// WithAddress returns a logger for the same account with a known address.
func (a *Account) WithAddress(address string) *Account {
	cp := *a
	cp.tags.Address = address
	return &cp
}

func (a *Account) Tags() Tags { return a.tags }

func (a *Account) Log(level Level, msg string, fields ...zap.Field) { a.log(level, msg, fields...) }

func (a *Account) log(level Level, msg string, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+4)
	all = append(all,
		zap.String(fieldAccount, a.tags.Account),
		zap.String(fieldAddress, a.tags.Address),
		zap.String(fieldNetwork, a.tags.Network),
		statusField(level),
	)
	all = append(all, fields...)

	lvl := level.ZapLevel()
	if ce := a.base.Check(lvl, msg); ce != nil {
		ce.Write(all...)
	}
	if a.file != nil {
		if ce := a.file.Check(lvl, msg); ce != nil {
			ce.Write(all...)
		}
	}
}

func (a *Account) Debug(msg string, fields ...zap.Field)   { a.log(LevelDebug, msg, fields...) }
func (a *Account) Info(msg string, fields ...zap.Field)    { a.log(LevelInfo, msg, fields...) }
func (a *Account) Delay(msg string, fields ...zap.Field)   { a.log(LevelDelay, msg, fields...) }
func (a *Account) Warn(msg string, fields ...zap.Field)    { a.log(LevelWarning, msg, fields...) }
func (a *Account) Success(msg string, fields ...zap.Field) { a.log(LevelSuccess, msg, fields...) }
func (a *Account) Minted(msg string, fields ...zap.Field)  { a.log(LevelMinted, msg, fields...) }
func (a *Account) Error(msg string, fields ...zap.Field)   { a.log(LevelError, msg, fields...) }

var accountFiles struct {
	mu      sync.Mutex
	dir     string
	loggers map[string]*zap.Logger
	files   []*os.File
}

// EnableAccountFiles turns on per-account log files under dir. An empty dir turns them off.
func EnableAccountFiles(dir string) error {
	accountFiles.mu.Lock()
	defer accountFiles.mu.Unlock()
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create account log dir: %w", err)
		}
	}
	accountFiles.dir = dir
	accountFiles.loggers = make(map[string]*zap.Logger)
	return nil
}

// accountFile returns the cached file logger for account, opening it on first use.
// It returns nil when files are disabled or the file cannot be opened.
func accountFile(account string) *zap.Logger {
	accountFiles.mu.Lock()
	defer accountFiles.mu.Unlock()
	if accountFiles.dir == "" || account == "" {
		return nil
	}
	if l, ok := accountFiles.loggers[account]; ok {
		return l
	}

	name := "log_" + sanitize(account) + ".log"
	f, err := os.OpenFile(filepath.Join(accountFiles.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		Log.Warn("open account log", zap.String("account", account), zap.Error(err))
		return nil
	}
	accountFiles.files = append(accountFiles.files, f)
	core := zapcore.NewCore(NewStyleEncoder(false), zapcore.AddSync(f), zapcore.InfoLevel)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(accountSkip))
	accountFiles.loggers[account] = l
	return l
}

func closeAccountFiles() {
	accountFiles.mu.Lock()
	defer accountFiles.mu.Unlock()
	for _, f := range accountFiles.files {
		_ = f.Sync()
		_ = f.Close()
	}
	accountFiles.files = nil
	accountFiles.loggers = make(map[string]*zap.Logger)
}

func sanitize(account string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, account)
}
