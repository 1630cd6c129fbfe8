package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/afex/hystrix-go/hystrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const success = "Success"

func testConfig() Config {
	return Config{
		Timeout:                1000,
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 10,
		SleepWindow:            10,
		ErrorPercentThreshold:  10,
	}
}

// unique name to avoid conflicts with go tests `-count` option
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().Nanosecond())
}

func TestCircuitBreaker_ExecuteSuccessSingle(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	cmd := NewCommand(context.TODO(), []*Functor{
		NewFunctor(func() ([]any, error) {
			return []any{success}, nil
		}, uniqueName("SuccessSingle")),
	})

	result := cb.Execute(cmd)
	require.NoError(t, result.Error())
	require.Equal(t, success, result.Result()[0].(string))
}

func TestCircuitBreaker_ExecuteFallbackOnFailure(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	circuitName := uniqueName("FallbackOnFailure")
	errBulk := errors.New("bulk fetch failed")
	cmd := NewCommand(context.TODO(), []*Functor{
		NewFunctor(func() ([]any, error) {
			return nil, errBulk
		}, circuitName+"_bulk"),
		NewFunctor(func() ([]any, error) {
			return []any{success}, nil
		}, circuitName+"_batch"),
	})

	result := cb.Execute(cmd)
	require.NoError(t, result.Error())
	require.Equal(t, success, result.Result()[0].(string))

	statuses := result.FunctorCallStatuses()
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Positive)
	assert.True(t, statuses[1].Positive)
}

func TestCircuitBreaker_ExecuteAllFailAccumulatesErrors(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		Timeout:                10,
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 10,
		SleepWindow:            10,
		ErrorPercentThreshold:  10,
	})

	circuitName := uniqueName("AllFail")
	errSecond := errors.New("second strategy failed")
	cmd := NewCommand(context.TODO(), []*Functor{
		NewFunctor(func() ([]any, error) {
			time.Sleep(100 * time.Millisecond) // will cause hystrix: timeout
			return []any{success}, nil
		}, circuitName+"1"),
		NewFunctor(func() ([]any, error) {
			return nil, errSecond
		}, circuitName+"2"),
	})

	result := cb.Execute(cmd)
	require.Error(t, result.Error())
	assert.True(t, errors.Is(result.Error(), hystrix.ErrTimeout))
	assert.True(t, errors.Is(result.Error(), errSecond))
}

func TestCircuitBreaker_LastFunctorBypassesOpenCircuit(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		RequestVolumeThreshold: 10,
	})

	circuitName := uniqueName("LastFunctorBypass")

	firstCalled := 0
	lastCalled := 0
	// Enough iterations to trip the first circuit, the last strategy must
	// keep being attempted directly every time.
	for i := 0; i < 20; i++ {
		cmd := NewCommand(context.TODO(), []*Functor{
			NewFunctor(func() ([]any, error) {
				firstCalled++
				return nil, errors.New("first strategy failed")
			}, circuitName+"1"),
			NewFunctor(func() ([]any, error) {
				lastCalled++
				return []any{success}, nil
			}, circuitName+"2"),
		})

		result := cb.Execute(cmd)
		require.NoError(t, result.Error())
	}

	assert.Less(t, firstCalled, 20)
	assert.Equal(t, 20, lastCalled)
	assert.True(t, CircuitExists(circuitName + "1"))
	assert.True(t, IsCircuitOpen(circuitName+"1"))
}

func TestCircuitBreaker_ExecuteCancel(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	called := 0
	cmd := NewCommand(context.TODO(), nil)
	cmd.Add(NewFunctor(func() ([]any, error) {
		called++
		cmd.Cancel()
		return nil, errors.New("canceled by caller")
	}, uniqueName("Cancel")+"1"))
	cmd.Add(NewFunctor(func() ([]any, error) {
		called++
		return []any{success}, nil
	}, uniqueName("Cancel")+"2"))

	result := cb.Execute(cmd)
	require.Error(t, result.Error())
	require.Equal(t, 1, called)
}

func TestCircuitBreaker_EmptyCommand(t *testing.T) {
	cb := NewCircuitBreaker(testConfig())

	result := cb.Execute(NewCommand(context.TODO(), nil))
	require.Error(t, result.Error())
}
