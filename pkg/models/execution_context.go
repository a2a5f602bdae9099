package models

// LoopContextKey is the reserved execution context key that exposes loop cursors to templates.
const LoopContextKey = "loop"

// LoopState is the cursor a loop node keeps across re-entries.
type LoopState struct {
	Index int   `json:"index"`
	Items []any `json:"items"`
}

// ExecutionContext accumulates each executed node's output keyed by node id.
// Insertion order is kept so positional lookups stay deterministic.
// It is owned by a single execution and is not safe for concurrent use.
type ExecutionContext struct {
	results map[string]any
	order   []string
	loops   map[string]*LoopState
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		results: make(map[string]any),
		loops:   make(map[string]*LoopState),
	}
}

// Set records the result of nodeID. Re-executions overwrite the value but keep
// the original position.
func (c *ExecutionContext) Set(nodeID string, result any) {
	if _, ok := c.results[nodeID]; !ok {
		c.order = append(c.order, nodeID)
	}

	c.results[nodeID] = result
}

// Result returns the recorded result of nodeID.
func (c *ExecutionContext) Result(nodeID string) (any, bool) {
	result, ok := c.results[nodeID]

	return result, ok
}

// Has reports whether nodeID has executed.
func (c *ExecutionContext) Has(nodeID string) bool {
	_, ok := c.results[nodeID]

	return ok
}

// First returns the first recorded node id and its result.
func (c *ExecutionContext) First() (string, any, bool) {
	if len(c.order) == 0 {
		return "", nil, false
	}

	id := c.order[0]

	return id, c.results[id], true
}

// NodeIDs returns the recorded node ids in execution order.
func (c *ExecutionContext) NodeIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)

	return ids
}

// Loop returns the cursor of loopNodeID, creating it when absent.
func (c *ExecutionContext) Loop(loopNodeID string) *LoopState {
	state, ok := c.loops[loopNodeID]
	if !ok {
		state = &LoopState{}
		c.loops[loopNodeID] = state
	}

	return state
}

// ResetLoop drops the cursor of loopNodeID so a later entry starts over.
func (c *ExecutionContext) ResetLoop(loopNodeID string) {
	delete(c.loops, loopNodeID)
}

// AsMap renders the context in its wire shape: node id → {result}, plus the
// loop sub-object when any loop is active.
func (c *ExecutionContext) AsMap() map[string]any {
	out := make(map[string]any, len(c.results)+1)

	for id, result := range c.results {
		out[id] = map[string]any{"result": result}
	}

	if len(c.loops) > 0 {
		loops := make(map[string]any, len(c.loops))
		for id, state := range c.loops {
			loops[id] = map[string]any{
				"index": state.Index,
				"total": len(state.Items),
			}
		}

		out[LoopContextKey] = loops
	}

	return out
}
