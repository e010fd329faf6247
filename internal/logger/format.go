package logger

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap/zapcore"
)

// Level is the status label shown in the severity column.
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelDelay   Level = "DELAY"
	LevelWarning Level = "WARNING"
	LevelSuccess Level = "SUCCESS"
	LevelMinted  Level = "MINTED"
	LevelError   Level = "ERROR"
)

// TimeLayout matches the console timestamp.
const TimeLayout = "2006-01-02 15:04:05"

type style struct {
	color *color.Color
	zap   zapcore.Level
}

var styles = map[Level]style{
	LevelDebug:   {color.New(color.FgBlue), zapcore.DebugLevel},
	LevelInfo:    {color.New(color.FgWhite), zapcore.InfoLevel},
	LevelDelay:   {color.New(color.FgCyan), zapcore.InfoLevel},
	LevelWarning: {color.New(color.FgYellow), zapcore.WarnLevel},
	LevelSuccess: {color.New(color.FgGreen), zapcore.InfoLevel},
	LevelMinted:  {color.New(color.FgGreen, color.Bold), zapcore.InfoLevel},
	LevelError:   {color.New(color.FgRed), zapcore.ErrorLevel},
}

func init() {
	// Format decides about color itself, so ignore terminal detection.
	for _, s := range styles {
		s.color.EnableColor()
	}
}

// ZapLevel maps a status label onto the zap level used for filtering.
func (l Level) ZapLevel() zapcore.Level {
	if s, ok := styles[l]; ok {
		return s.zap
	}
	return zapcore.InfoLevel
}

func levelFromZap(l zapcore.Level) Level {
	switch l {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarning
	default:
		return LevelError
	}
}

// Tags identify whose message it is.
type Tags struct {
	Account string
	Address string
	Network string
}

func (t Tags) empty() bool {
	return t.Account == "" && t.Address == "" && t.Network == ""
}

// Format renders one console line:
//
//	2024-01-02 15:04:05 | MINTED   |    acc-1 | 0xabc | Bsc - message
//
// Lines without tags drop the tag columns.
func Format(level Level, tags Tags, msg string, at time.Time, colored bool) string {
	label := fmt.Sprintf(" %-8s ", string(level))
	if colored {
		if s, ok := styles[level]; ok {
			label = s.color.Sprint(label)
		}
	}

	var b strings.Builder
	b.WriteString(at.Format(TimeLayout))
	b.WriteString(" |")
	b.WriteString(label)
	if tags.empty() {
		b.WriteString("| ")
		b.WriteString(msg)
		return b.String()
	}
	fmt.Fprintf(&b, "| %8s | %s | %s - %s", tags.Account, tags.Address, tags.Network, msg)
	return b.String()
}
