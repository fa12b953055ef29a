package actorutil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ButtonPressToDispatch maps an MQTT button press to a dispatch of the pressed power action.
func ButtonPressToDispatch(cmd mqtt.ParsedMQTTCommand) (domain.DispatchRequest, error) {
	if cmd.Command != mqtt.COMMAND_BUTTON_PRESS {
		return domain.DispatchRequest{}, fmt.Errorf("%w: unsupported mqtt command %q", domain.ErrUnknownAction, cmd.Command)
	}
	action, err := domain.ParseAction(cmd.Param, nil)
	if err != nil {
		return domain.DispatchRequest{}, err
	}
	switch domain.EffectOf(action) {
	case domain.EFFECT_POWER_UP, domain.EFFECT_POWER_DOWN:
	default:
		return domain.DispatchRequest{}, fmt.Errorf("%w: %q is not exposed as a button", domain.ErrUnknownAction, cmd.Param)
	}
	return domain.DispatchRequest{
		DeviceId: cmd.DeviceId,
		Action:   action,
	}, nil
}
