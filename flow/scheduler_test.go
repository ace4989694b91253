package flow

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(_ context.Context, input any) (any, error) {
	s, _ := input.(string)
	return s + "!", nil
}

func TestRun_LinearChainEndsAtConfiguredEnd(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("a", upper, nil))
	require.NoError(t, g.AddNode("b", upper, nil))
	require.NoError(t, g.Edge("a", "b"))

	r, err := g.Compile("a", "b")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, res.IsOK)
	assert.Equal(t, "x!!", res.Output)
	require.Len(t, res.History, 2)
	assert.Equal(t, "a", res.History[0].Name)
	assert.Equal(t, "b", res.History[1].Name)
}

func TestRun_DiamondMergeWaitsForBothBranches(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("start", passthroughBody, nil))
	require.NoError(t, g.AddNode("left", func(_ context.Context, input any) (any, error) {
		return "left:" + input.(string), nil
	}, nil))
	require.NoError(t, g.AddNode("right", func(_ context.Context, input any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "right:" + input.(string), nil
	}, nil))

	mergeBody := func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs, nil
	}
	require.NoError(t, g.AddMergeNode("m", []string{"left", "right"}, mergeBody, nil))
	require.NoError(t, g.Edge("start", "left", "right"))

	r, err := g.Compile("start", "m")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, res.IsOK)

	merged, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "left:x", merged["left"])
	assert.Equal(t, "right:x", merged["right"])

	// The merge node must appear exactly once in history.
	count := 0
	for _, h := range res.History {
		if h.Name == "m" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRun_MergeBranchSourceWithDirectEdgeAlsoReachesMerge(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("start", passthroughBody, nil))
	require.NoError(t, g.AddNode("left", func(_ context.Context, input any) (any, error) {
		return "left:" + input.(string), nil
	}, nil))
	require.NoError(t, g.AddNode("right", func(_ context.Context, input any) (any, error) {
		return "right:" + input.(string), nil
	}, nil))
	require.NoError(t, g.AddNode("side", passthroughBody, nil))

	mergeBody := func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs, nil
	}
	require.NoError(t, g.AddMergeNode("m", []string{"left", "right"}, mergeBody, nil))
	require.NoError(t, g.Edge("start", "left", "right"))
	// left is both a direct-edge source (to "side") and a branch source of
	// merge "m": the merge node must be unioned into its successor set
	// alongside "side", not displace it.
	require.NoError(t, g.Edge("left", "side"))

	r, err := g.Compile("start", "m")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, res.IsOK)

	merged, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "left:x", merged["left"])
	assert.Equal(t, "right:x", merged["right"])

	var mergeCount, sideCount int
	for _, h := range res.History {
		switch h.Name {
		case "m":
			mergeCount++
		case "side":
			sideCount++
		}
	}
	assert.Equal(t, 1, mergeCount, "merge node must still run exactly once")
	assert.Equal(t, 1, sideCount, "left's direct edge to side must still fire")
}

func TestRun_DynamicRoutingTerminatesOnNull(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("start", func(_ context.Context, input any) (any, error) {
		return input, nil
	}, nil))
	require.NoError(t, g.AddNode("target", passthroughBody, nil))

	router := func(_ context.Context, output any) (any, error) {
		if output == "stop" {
			return nil, nil
		}
		return "target", nil
	}
	require.NoError(t, g.DynamicEdge("start", router, "target"))

	r, err := g.Compile("start", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "stop")
	require.NoError(t, err)
	require.True(t, res.IsOK)
	assert.Len(t, res.History, 1)
	assert.Equal(t, "start", res.History[0].Name)
}

func TestRun_InvalidDynamicEdgeResultFailsRun(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("start", passthroughBody, nil))
	require.NoError(t, g.AddNode("target", passthroughBody, nil))

	router := func(_ context.Context, _ any) (any, error) {
		return []any{"target", 42}, nil
	}
	require.NoError(t, g.DynamicEdge("start", router, "target"))

	r, err := g.Compile("start", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, res.IsOK)
	var ee *ExecError
	require.ErrorAs(t, res.Error, &ee)
	assert.Equal(t, CodeInvalidDynamicResult, ee.Code)
}

func TestRun_FanOutWithoutMergeRunsBothBranches(t *testing.T) {
	g := NewGraph()
	var mu sync.Mutex
	var seen []string

	record := func(name string) Body {
		return func(_ context.Context, input any) (any, error) {
			mu.Lock()
			seen = append(seen, name)
			mu.Unlock()
			return input, nil
		}
	}

	require.NoError(t, g.AddNode("start", record("start"), nil))
	require.NoError(t, g.AddNode("b", record("b"), nil))
	require.NoError(t, g.AddNode("c", record("c"), nil))
	require.NoError(t, g.Edge("start", "b", "c"))

	r, err := g.Compile("start", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, res.IsOK)

	mu.Lock()
	sort.Strings(seen)
	mu.Unlock()
	assert.Equal(t, []string{"b", "c", "start"}, seen)
}

func TestRun_MaxNodeVisitsExceededOnInfiniteLoop(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("loop", passthroughBody, nil))
	require.NoError(t, g.Edge("loop", "loop"))

	r, err := g.Compile("loop", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x", WithMaxNodeVisits(5))
	require.NoError(t, err)
	require.False(t, res.IsOK)
	var ee *ExecError
	require.ErrorAs(t, res.Error, &ee)
	assert.Equal(t, CodeMaxNodeVisitsExceeded, ee.Code)
}

func TestRun_ExitStopsFurtherScheduling(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("loop", passthroughBody, nil))
	require.NoError(t, g.Edge("loop", "loop"))

	r, err := g.Compile("loop", "")
	require.NoError(t, err)

	go func() {
		time.Sleep(5 * time.Millisecond)
		r.Exit("test requested stop")
	}()

	res, err := r.Run(context.Background(), "x", WithMaxNodeVisits(1_000_000))
	require.NoError(t, err)
	require.False(t, res.IsOK)
	var ee *ExecError
	require.ErrorAs(t, res.Error, &ee)
	assert.Equal(t, CodeExit, ee.Code)
}

func TestRun_NodeExecutionFailurePropagatesAsResultError(t *testing.T) {
	g := NewGraph()
	boom := func(_ context.Context, _ any) (any, error) {
		return nil, assertErr("boom")
	}
	require.NoError(t, g.AddNode("a", boom, nil))

	r, err := g.Compile("a", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x")
	require.NoError(t, err)
	require.False(t, res.IsOK)
	var ee *ExecError
	require.ErrorAs(t, res.Error, &ee)
	assert.Equal(t, CodeNodeExecutionFailed, ee.Code)
}

func TestRun_TimeoutFailsSleepingNode(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode("slow", func(ctx context.Context, input any) (any, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return input, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil))

	r, err := g.Compile("slow", "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), "x", WithTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.False(t, res.IsOK)
	var ee *ExecError
	require.ErrorAs(t, res.Error, &ee)
	assert.Equal(t, CodeExecutionTimeout, ee.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
