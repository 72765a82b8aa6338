package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore caps Trace through Info volume with one shared rate. Warn
// and above always pass: memoryd's warnings carry isolation and rotation
// anomalies (stale bindings, failed key reloads, privileged maintenance
// runs) and dropping any of them would blind an audit.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	warnAndUp := &levelBandCore{Core: core, min: zapcore.WarnLevel, max: zapcore.FatalLevel}
	sampled := zapcore.NewSamplerWithOptions(
		&levelBandCore{Core: core, min: TraceLevel, max: zapcore.InfoLevel},
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)
	return zapcore.NewTee(warnAndUp, sampled)
}

// levelBandCore passes entries whose level falls inside [min, max].
type levelBandCore struct {
	zapcore.Core
	min zapcore.Level
	max zapcore.Level
}

func (c *levelBandCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelBandCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelBandCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelBandCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
