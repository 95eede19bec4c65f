package obs

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TaskLogger adapts zerolog to the asynq.Logger interface so queue internals
// log in the same structured stream as the rest of the process.
type TaskLogger struct {
	Logger zerolog.Logger
}

func (l TaskLogger) Debug(args ...any) { l.Logger.Debug().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Info(args ...any)  { l.Logger.Info().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Warn(args ...any)  { l.Logger.Warn().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Error(args ...any) { l.Logger.Error().Msg(fmt.Sprint(args...)) }
func (l TaskLogger) Fatal(args ...any) { l.Logger.Fatal().Msg(fmt.Sprint(args...)) }
