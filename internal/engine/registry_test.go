package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// stubStrategy is a minimal Strategy for registry tests.
type stubStrategy struct {
	id   string
	kind types.StrategyKind
}

func (s *stubStrategy) ID() string { return s.id }

func (s *stubStrategy) Kind() types.StrategyKind { return s.kind }

func (s *stubStrategy) Snapshot() types.StrategySnapshot {
	return types.StrategySnapshot{ID: s.id, Kind: s.kind}
}

func (s *stubStrategy) Stop(_ context.Context) error { return nil }

type RegistryTestSuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.registry = NewRegistry()
}

func (s *RegistryTestSuite) TestAddGetRemove() {
	s.registry.Add(&stubStrategy{id: "a", kind: types.StrategyKindOCO})

	strategy, err := s.registry.Get("a")
	s.Require().NoError(err)
	s.Equal("a", strategy.ID())

	s.registry.Remove("a")

	_, err = s.registry.Get("a")
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (s *RegistryTestSuite) TestRemoveUnknownIsNoOp() {
	s.registry.Remove("missing")
	s.Equal(0, s.registry.Len())
}

func (s *RegistryTestSuite) TestListFiltersByKind() {
	s.registry.Add(&stubStrategy{id: "a", kind: types.StrategyKindOCO})
	s.registry.Add(&stubStrategy{id: "b", kind: types.StrategyKindGrid})
	s.registry.Add(&stubStrategy{id: "c", kind: types.StrategyKindGrid})

	s.Len(s.registry.List(types.StrategyKindGrid), 2)
	s.Len(s.registry.List(types.StrategyKindOCO), 1)
	s.Len(s.registry.List(types.StrategyKindTWAP), 0)
	s.Len(s.registry.List(""), 3)
}

func (s *RegistryTestSuite) TestConcurrentAccess() {
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			id := string(rune('a' + n))
			s.registry.Add(&stubStrategy{id: id, kind: types.StrategyKindTWAP})
			s.registry.List("")
			s.registry.Remove(id)
		}(i)
	}

	wg.Wait()
	s.Equal(0, s.registry.Len())
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
