package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var at = time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)

func TestFormatPlain(t *testing.T) {
	tags := Tags{Account: "acc-1", Address: "0xabc", Network: "Bsc"}
	got := Format(LevelMinted, tags, "minted", at, false)
	assert.Equal(t, "2024-03-01 12:30:05 | MINTED   |    acc-1 | 0xabc | Bsc - minted", got)
}

func TestFormatWithoutTags(t *testing.T) {
	got := Format(LevelInfo, Tags{}, "starting", at, false)
	assert.Equal(t, "2024-03-01 12:30:05 | INFO     | starting", got)
}

func TestFormatColoredWrapsOnlyTheLabel(t *testing.T) {
	tags := Tags{Account: "7", Address: "0x1", Network: "Op_bnb"}
	got := Format(LevelError, tags, "boom", at, true)
	assert.Contains(t, got, "\x1b[31m")
	assert.True(t, strings.HasSuffix(got, "| Op_bnb - boom"))
	assert.NotContains(t, Format(LevelError, tags, "boom", at, false), "\x1b[")
}

func TestLevelsMapToZap(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, LevelDebug.ZapLevel())
	assert.Equal(t, zapcore.InfoLevel, LevelMinted.ZapLevel())
	assert.Equal(t, zapcore.InfoLevel, LevelDelay.ZapLevel())
	assert.Equal(t, zapcore.WarnLevel, LevelWarning.ZapLevel())
	assert.Equal(t, zapcore.ErrorLevel, LevelError.ZapLevel())
	assert.Equal(t, zapcore.InfoLevel, Level("BRIDGED").ZapLevel())
}

func TestStyleEncoderRendersTagsAndExtras(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(NewStyleEncoder(false), zapcore.AddSync(&buf), zapcore.DebugLevel)
	acc := NewAccountWith(zap.New(core), Tags{Account: "main", Address: "0xfeed", Network: "Polygon"})

	acc.Success("sent", zap.String("hash", "0x01"))
	line := buf.String()
	assert.Contains(t, line, "| SUCCESS  |     main | 0xfeed | Polygon - sent hash=0x01")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestAccountTagsEveryLine(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	acc := NewAccountWith(zap.New(core), Tags{Account: "acc-2", Address: "0x2"}).WithNetwork("Arbitrum")

	acc.Minted("done")
	acc.Warn("slow")
	acc.Delay("sleeping")

	entries := logs.All()
	require.Len(t, entries, 3)
	for _, e := range entries {
		ctx := e.ContextMap()
		assert.Equal(t, "acc-2", ctx["account"])
		assert.Equal(t, "0x2", ctx["address"])
		assert.Equal(t, "Arbitrum", ctx["network"])
	}
	assert.Equal(t, "MINTED", entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "DELAY", entries[2].ContextMap()["status"])
}

func TestAccountReportsItsCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	acc := NewAccountWith(zap.New(core, zap.AddCaller()), Tags{Account: "acc-3"})

	acc.Info("via level method")
	acc.Log(LevelSuccess, "via Log")

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, e.Caller.Defined)
		assert.Equal(t, "logger_test.go", filepath.Base(e.Caller.File), e.Message)
	}
}

func TestAccountFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnableAccountFiles(dir))
	t.Cleanup(func() {
		closeAccountFiles()
		_ = EnableAccountFiles("")
	})

	acc := NewAccountWith(zap.NewNop(), Tags{Account: "wallet 1", Address: "0x3", Network: "Bsc"})
	acc.Info("hello")
	acc.Debug("hidden")
	again := NewAccountWith(zap.NewNop(), Tags{Account: "wallet 1", Address: "0x3", Network: "Bsc"})
	again.Error("second")
	closeAccountFiles()

	raw, err := os.ReadFile(filepath.Join(dir, "log_wallet_1.log"))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "Bsc - ")
	assert.Contains(t, content, "hello")
	assert.Contains(t, content, "second")
	assert.NotContains(t, content, "hidden")
	assert.NotContains(t, content, "\x1b[")
}

func TestAccountFilesDisabledByDefault(t *testing.T) {
	acc := NewAccountWith(zap.NewNop(), Tags{Account: "x"})
	assert.Nil(t, acc.file)
}

func TestInitWritesMainLog(t *testing.T) {
	dir := t.TempDir()
	prev, prevRaw := Log, raw
	t.Cleanup(func() { Log, raw = prev, prevRaw })

	require.NoError(t, Init("production", dir))
	Info("booted", zap.String("component", "test"))
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"booted"`)
	assert.Contains(t, string(data), `"caller":"logger/logger_test.go:`)
}
