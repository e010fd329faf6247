package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	fieldAccount = "account"
	fieldAddress = "address"
	fieldNetwork = "network"
	fieldStatus  = "status"
)

var linePool = buffer.NewPool()

// styleEncoder writes entries through Format. Tag fields become columns and any other
// fields are appended as key=value pairs. Fields attached with Logger.With are not
// rendered.
type styleEncoder struct {
	zapcore.Encoder
	colored bool
}

// NewStyleEncoder returns the console encoder used by Init.
func NewStyleEncoder(colored bool) zapcore.Encoder {
	return &styleEncoder{
		Encoder: zapcore.NewJSONEncoder(zapcore.EncoderConfig{}),
		colored: colored,
	}
}

func (e *styleEncoder) Clone() zapcore.Encoder {
	return &styleEncoder{Encoder: e.Encoder.Clone(), colored: e.colored}
}

func (e *styleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	level := levelFromZap(ent.Level)
	var tags Tags
	extra := make([]string, 0, len(enc.Fields))
	for _, f := range fields {
		v, ok := enc.Fields[f.Key]
		if !ok {
			continue
		}
		switch f.Key {
		case fieldAccount:
			tags.Account = fmt.Sprint(v)
		case fieldAddress:
			tags.Address = fmt.Sprint(v)
		case fieldNetwork:
			tags.Network = fmt.Sprint(v)
		case fieldStatus:
			level = Level(fmt.Sprint(v))
		default:
			extra = append(extra, fmt.Sprintf("%s=%v", f.Key, v))
		}
	}

	msg := ent.Message
	if ent.Caller.Defined {
		msg = ent.Caller.TrimmedPath() + " - " + msg
	}
	if len(extra) > 0 {
		msg += " " + strings.Join(extra, " ")
	}

	buf := linePool.Get()
	buf.AppendString(Format(level, tags, msg, ent.Time, e.colored))
	buf.AppendByte('\n')
	return buf, nil
}

func statusField(l Level) zap.Field { return zap.String(fieldStatus, string(l)) }
