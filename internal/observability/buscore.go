// File: internal/observability/buscore.go
package observability

import (
	"go.uber.org/zap/zapcore"

	"github.com/karacadev/portalkeeper/internal/eventbus"
)

// busCore is a zapcore.Core that republishes every accepted log entry onto
// the event broadcast bus, so connected observers see the same stream the
// log files do.
type busCore struct {
	zapcore.LevelEnabler
	bus    *eventbus.Bus
	fields []zapcore.Field
}

// NewBusCore creates a core that forwards entries at or above the given
// level to the bus.
func NewBusCore(bus *eventbus.Bus, enab zapcore.LevelEnabler) zapcore.Core {
	return &busCore{LevelEnabler: enab, bus: bus}
}

func (c *busCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &busCore{
		LevelEnabler: c.LevelEnabler,
		bus:          c.bus,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *busCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *busCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	ev := eventbus.Event{
		Level:     ent.Level.String(),
		Message:   ent.Message,
		Timestamp: ent.Time.UTC(),
	}
	if len(enc.Fields) > 0 {
		ev.Fields = enc.Fields
		if u, ok := enc.Fields["username"].(string); ok {
			ev.Username = u
		}
	}
	c.bus.Publish(ev)
	return nil
}

func (c *busCore) Sync() error { return nil }
