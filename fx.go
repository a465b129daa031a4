package zsock

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModuleParams are the optional dependencies of Module.
type ModuleParams struct {
	fx.In

	Logger  *zap.Logger `optional:"true"`
	Metrics *Metrics    `optional:"true"`
}

// Module provides a *Context built from cfg. A *zap.Logger or *Metrics in the
// graph override the ones in cfg. The context is terminated on stop; sockets
// still open then are closed with zero linger once the stop deadline passes.
func Module(cfg ContextConfig) fx.Option {
	return fx.Module("zsock",
		fx.Provide(func(lc fx.Lifecycle, p ModuleParams) (*Context, error) {
			if p.Logger != nil {
				cfg.Logger = p.Logger
			}
			if p.Metrics != nil {
				cfg.Metrics = p.Metrics
			}
			c, err := NewContext(cfg)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return c.Term(ctx)
				},
			})
			return c, nil
		}),
	)
}
