package gemm

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// VerboseEnv is the environment switch for per-call debug dumps of the
// resolved shapes, types, and flags. Purely observational; results are
// identical with it on or off.
const VerboseEnv = "TE_GEMM_VERBOSE"

// DebugSink receives the per-call debug dump. It is injected rather than
// looked up globally so tests can substitute their own sink. Enabled is
// consulted once per call.
type DebugSink interface {
	Enabled() bool
	Dump(msg string, kv ...any)
}

// envDebugSink is the default sink: enabled by the environment variable,
// writing through the global zerolog logger.
type envDebugSink struct{}

func (envDebugSink) Enabled() bool {
	return os.Getenv(VerboseEnv) != ""
}

func (envDebugSink) Dump(msg string, kv ...any) {
	e := log.Debug()
	addFields(e, kv...)
	e.Msg(msg)
}

func addFields(e *zerolog.Event, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		e.Interface(key, kv[i+1])
	}
}
