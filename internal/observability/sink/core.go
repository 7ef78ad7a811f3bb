package sink

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// core is a zapcore.Core that encodes each entry as a JSON line and
// offers it to the sink.
type core struct {
	zapcore.LevelEnabler
	enc      zapcore.Encoder
	sink     *Sink
	keys     map[string]struct{}
	metadata map[string]string
}

// Core returns a zapcore.Core feeding the sink. It is meant to be teed
// next to the console core so the same record goes to both.
func (s *Sink) Core(encoderConfig zapcore.EncoderConfig, level zapcore.LevelEnabler) zapcore.Core {
	keys := make(map[string]struct{}, len(s.cfg.MetadataKeys))
	for _, k := range s.cfg.MetadataKeys {
		keys[k] = struct{}{}
	}
	encoderConfig.LineEnding = "\n"
	return &core{
		LevelEnabler: level,
		enc:          zapcore.NewJSONEncoder(encoderConfig),
		sink:         s,
		keys:         keys,
	}
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := c.clone()
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	clone.metadata = c.collectMetadata(c.metadata, fields)
	return clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	line := strings.TrimSuffix(buf.String(), "\n")
	buf.Free()

	// Enqueue failures are counted by the sink and never surface to the
	// caller's logger.
	_ = c.sink.Enqueue(Record{
		Time:     ent.Time,
		Level:    ent.Level.String(),
		Line:     line,
		Metadata: c.collectMetadata(c.metadata, fields),
	})
	return nil
}

// Sync is a no-op; Stop flushes the queue.
func (c *core) Sync() error {
	return nil
}

func (c *core) clone() *core {
	return &core{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		sink:         c.sink,
		keys:         c.keys,
		metadata:     c.metadata,
	}
}

// collectMetadata returns base extended with the configured string
// fields. base is never mutated.
func (c *core) collectMetadata(base map[string]string, fields []zapcore.Field) map[string]string {
	var out map[string]string
	for _, f := range fields {
		if f.Type != zapcore.StringType {
			continue
		}
		if _, ok := c.keys[f.Key]; !ok {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(base)+len(fields))
			for k, v := range base {
				out[k] = v
			}
		}
		out[f.Key] = f.String
	}
	if out == nil {
		return base
	}
	return out
}
