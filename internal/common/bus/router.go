package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"soknad-workers/internal/common/errors"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/common/observability"
)

type route struct {
	taskType string
	handler  Handler
	timeout  time.Duration
}

// Router offers every message to every registered handler. All handlers run
// even when one fails; their errors are joined.
type Router struct {
	routes  []route
	logger  logger.Logger
	metrics *metrics.Metrics
	obs     *observability.Observability
}

func NewRouter(log logger.Logger, m *metrics.Metrics, obs *observability.Observability) *Router {
	return &Router{
		logger:  log.WithFields(map[string]interface{}{"component": "router"}),
		metrics: m,
		obs:     obs,
	}
}

// Register adds a handler. timeout bounds each invocation; zero means none.
func (r *Router) Register(taskType string, h Handler, timeout time.Duration) {
	r.routes = append(r.routes, route{taskType: taskType, handler: h, timeout: timeout})
	r.logger.Info("handler registered", map[string]interface{}{
		"taskType":   taskType,
		"timeout_ms": timeout.Milliseconds(),
	})
}

// TaskTypes lists registered handlers in registration order.
func (r *Router) TaskTypes() []string {
	out := make([]string, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.taskType
	}
	return out
}

func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, rt := range r.routes {
		if err := r.invoke(ctx, rt, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.taskType, err))
		}
	}
	return stderrors.Join(errs...)
}

func (r *Router) invoke(ctx context.Context, rt route, msg Message) (err error) {
	if rt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.timeout)
		defer cancel()
	}

	active := r.metrics.HandlersActive.WithLabelValues(rt.taskType)
	active.Inc()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = errors.NewInternalError(fmt.Errorf("panic: %v", p))
		}
		active.Dec()
		elapsed := time.Since(start)
		r.metrics.HandlerDuration.WithLabelValues(rt.taskType).Observe(elapsed.Seconds())

		status := "success"
		if err != nil {
			status = "failed"
			r.metrics.HandlerMessagesFailed.WithLabelValues(rt.taskType, string(errors.AsStandard(err).Code)).Inc()
		} else {
			r.metrics.HandlerMessagesCompleted.WithLabelValues(rt.taskType).Inc()
		}
		r.obs.RecordMessage(ctx, rt.taskType, status, elapsed)
	}()

	return rt.handler.Handle(ctx, msg)
}
