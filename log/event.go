package log

import (
	"bytes"
	"time"
)

// LogEvent is a single structured entry under construction. All methods are
// nil-safe so a disabled level costs one comparison:
//
//	log.Debug().Str("stream", id).Int("lines", n).Msg("flush")
type LogEvent struct {
	buf    *bytes.Buffer
	logger Logger
	level  Level
}

func newEvent(l Logger) *LogEvent {
	e := &LogEvent{
		logger: l,
		level:  DebugLevel,
		buf:    &bytes.Buffer{},
	}
	e.buf.Grow(512)
	return e
}

// Reset clears the event for reuse from the pool. Oversized buffers are
// replaced so one huge entry does not pin memory.
func (e *LogEvent) Reset() {
	if e.buf.Cap() > 4096 {
		e.buf = bytes.NewBuffer(make([]byte, 0, 512))
	} else {
		e.buf.Reset()
	}
	e.level = DebugLevel
	appendBeginMarker(e.buf)
}

// Time appends t formatted as "YYYY-MM-DD HH:MM:SS.mmm".
func (e *LogEvent) Time(k string, t time.Time) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)

	var tb [25]byte
	b := t.AppendFormat(tb[:0], `"2006-01-02 15:04:05.000"`)
	e.buf.Write(b)
	return e
}

// Dur appends d in milliseconds with fractional precision.
func (e *LogEvent) Dur(k string, d time.Duration) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendFloat(e.buf, float64(d)/float64(time.Millisecond))
	return e
}

// Int appends an int field.
func (e *LogEvent) Int(k string, v int) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendInt(e.buf, int64(v))
	return e
}

// Int64 appends an int64 field.
func (e *LogEvent) Int64(k string, v int64) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendInt(e.buf, v)
	return e
}

// Uint64 appends a uint64 field.
func (e *LogEvent) Uint64(k string, v uint64) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendUint(e.buf, v)
	return e
}

// Float64 appends a float64 field. NaN and infinities are quoted.
func (e *LogEvent) Float64(k string, v float64) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendFloat(e.buf, v)
	return e
}

// Bool appends a bool field.
func (e *LogEvent) Bool(k string, v bool) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendBool(e.buf, v)
	return e
}

// Str appends a string field.
func (e *LogEvent) Str(k string, s string) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendString(e.buf, s)
	return e
}

// Strs appends a string array field.
func (e *LogEvent) Strs(k string, v []string) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	appendStrings(e.buf, v)
	return e
}

// Err appends the "error" field, null for a nil error.
func (e *LogEvent) Err(v error) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, "error")
	if v != nil {
		appendString(e.buf, v.Error())
	} else {
		appendNil(e.buf)
	}
	return e
}

// LogObjectMarshaler lets a value write its own fields under a nested key.
type LogObjectMarshaler interface {
	MarshalLogObj(e *LogEvent)
}

// Obj appends v as a nested JSON object.
func (e *LogEvent) Obj(k string, v LogObjectMarshaler) *LogEvent {
	if e == nil {
		return nil
	}
	appendKey(e.buf, k)
	if v == nil {
		appendNil(e.buf)
		return e
	}
	appendBeginMarker(e.buf)
	v.MarshalLogObj(e)
	appendEndMarker(e.buf)
	return e
}

// Msg sets the "msg" field and writes the entry.
func (e *LogEvent) Msg(v string) {
	if e == nil {
		return
	}
	e.Str("msg", v)
	e.End()
}

// End writes the entry without a message.
func (e *LogEvent) End() {
	if e == nil {
		return
	}
	appendEndMarker(e.buf)
	e.buf.WriteByte('\n')
	e.logger.OnEventEnd(e)
}
