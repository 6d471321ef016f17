package oracle

import (
	"mote/internal/codec"
	"mote/internal/resolve"
)

const oracleVersion = 2

func (o *Oracle) Tag() codec.Tag { return codec.TagOracle }
func (o *Oracle) Version() int32 { return oracleVersion }

func (o *Oracle) WriteData(w *codec.Writer) {
	w.WriteString(o.cfg.CmdArgsScript)
	w.WriteString(o.cfg.ScriptArgsScript)
	w.WriteString(o.cfg.EvaluateScript)
	w.WriteI32(int32(o.cfg.PUTType))
	w.WriteString(o.cfg.ScriptPath)
	w.WriteDuration(o.cfg.Timeout)
}

func (o *Oracle) ReadData(r *codec.Reader, version int32) {
	o.cfg.CmdArgsScript = r.ReadString()
	o.cfg.ScriptArgsScript = r.ReadString()
	o.cfg.EvaluateScript = r.ReadString()
	o.cfg.PUTType = PUTType(r.ReadI32())
	o.cfg.ScriptPath = r.ReadString()
	o.cfg.Timeout = r.ReadDuration()
	o.cfg = o.cfg.withDefaults()
}

// InitializeEarly/InitializeLate: the Oracle singleton holds no
// references to other forms, so both are no-ops (§4.2 Phase C/D).
func (o *Oracle) InitializeEarly(res *resolve.Resolver) error { return nil }
func (o *Oracle) InitializeLate(res *resolve.Resolver) error  { return nil }
