package circuitbreaker

import (
	"context"
	"fmt"

	"github.com/afex/hystrix-go/hystrix"
)

type FallbackFunc func() ([]any, error)

type CommandResult struct {
	res []any
	err error

	functorCallStatuses []FunctorCallStatus
}

type FunctorCallStatus struct {
	Name      string
	Positive  bool
	ErrorInfo string
}

func (cr CommandResult) Result() []any {
	return cr.res
}

func (cr CommandResult) Error() error {
	return cr.err
}

func (cr CommandResult) FunctorCallStatuses() []FunctorCallStatus {
	return cr.functorCallStatuses
}

func (cr *CommandResult) addCallStatus(circuitName string, err error) {
	status := FunctorCallStatus{
		Name:     circuitName,
		Positive: err == nil,
	}
	if err != nil {
		status.ErrorInfo = err.Error()
	}
	cr.functorCallStatuses = append(cr.functorCallStatuses, status)
}

type Command struct {
	ctx      context.Context
	functors []*Functor
	cancel   bool
}

func NewCommand(ctx context.Context, functors []*Functor) *Command {
	return &Command{
		ctx:      ctx,
		functors: functors,
	}
}

func (cmd *Command) Add(ftor *Functor) {
	cmd.functors = append(cmd.functors, ftor)
}

func (cmd *Command) IsEmpty() bool {
	return len(cmd.functors) == 0
}

func (cmd *Command) Cancel() {
	cmd.cancel = true
}

type Config struct {
	Timeout                int
	MaxConcurrentRequests  int
	RequestVolumeThreshold int
	SleepWindow            int
	ErrorPercentThreshold  int
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
	}
}

type Functor struct {
	exec        FallbackFunc
	circuitName string
}

func NewFunctor(exec FallbackFunc, circuitName string) *Functor {
	return &Functor{
		exec:        exec,
		circuitName: circuitName,
	}
}

func CircuitExists(circuitName string) bool {
	return hystrix.GetCircuitSettings()[circuitName] != nil
}

func IsCircuitOpen(circuitName string) bool {
	circuit, wasCreated, err := hystrix.GetCircuit(circuitName)
	return err == nil && !wasCreated && circuit.IsOpen()
}

// Execute runs each functor in its circuit until one succeeds.
// Functor order encodes strategy priority (e.g. bulk fetch first,
// batched fallback second). This is a blocking function.
func (cb *CircuitBreaker) Execute(cmd *Command) CommandResult {
	if cmd == nil || cmd.IsEmpty() {
		return CommandResult{err: fmt.Errorf("command is nil or empty")}
	}

	var result CommandResult
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for i, f := range cmd.functors {
		if cmd.cancel {
			break
		}

		var err error
		// The last functor is executed directly, so a sole remaining
		// strategy is not rejected by its own open circuit.
		if i == len(cmd.functors)-1 {
			var res []any
			res, err = f.exec()
			if err == nil {
				result.res = res
			}
			result.addCallStatus(f.circuitName, err)
		} else {
			if hystrix.GetCircuitSettings()[f.circuitName] == nil {
				hystrix.ConfigureCommand(f.circuitName, hystrix.CommandConfig{
					Timeout:                cb.config.Timeout,
					MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
					RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
					SleepWindow:            cb.config.SleepWindow,
					ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
				})
			}

			err = hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
				res, execErr := f.exec()
				// Write to result only if success
				if execErr == nil {
					result.res = res
				}
				result.addCallStatus(f.circuitName, execErr)
				return execErr
			}, nil)
		}

		if err == nil {
			result.err = nil
			break
		}

		// Accumulate errors
		if result.err != nil {
			result.err = fmt.Errorf("%w, %s.error: %w", result.err, f.circuitName, err)
		} else {
			result.err = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
		// Keep iterating even on a hystrix concurrency rejection, the next
		// strategy still deserves its attempt.
	}

	return result
}
