package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

// Recorder folds events into an ExecutionRecord before forwarding them.
type Recorder struct {
	next   Emitter
	mutex  sync.Mutex
	record *models.ExecutionRecord
}

func NewRecorder(executionID, workflowID string, next Emitter) *Recorder {
	if next == nil {
		next = Noop{}
	}

	return &Recorder{
		next:   next,
		record: models.NewExecutionRecord(executionID, workflowID),
	}
}

func (r *Recorder) Emit(ctx context.Context, event Event) {
	r.apply(event)
	r.next.Emit(ctx, event)
}

func (r *Recorder) apply(event Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	at := event.Timestamp
	nodeID, _ := event.Data["nodeId"].(string)

	switch event.Event {
	case ExecutionPending:
		r.record.Status = models.ExecutionStatusPending
	case ExecutionStarted:
		r.record.Status = models.ExecutionStatusRunning
	case NodeStarted:
		r.record.Nodes[nodeID] = &models.NodeRunState{Status: models.NodeRunStatusRunning, StartedAt: at}
	case NodeCompleted:
		state := r.node(nodeID, at)
		state.Status = models.NodeRunStatusCompleted
		state.CompletedAt = &at
		state.Output = event.Data["output"]
	case NodeFailed:
		state := r.node(nodeID, at)
		state.Status = models.NodeRunStatusFailed
		state.CompletedAt = &at
		state.Error, _ = event.Data["error"].(string)
	case ExecutionCompleted:
		r.record.Status = models.ExecutionStatusCompleted
		r.record.CompletedAt = &at

		if result, ok := event.Data["result"].(*models.TerminalResult); ok {
			r.record.Output = result
		}
	case ExecutionFailed:
		r.record.Status = models.ExecutionStatusFailed
		r.record.CompletedAt = &at
		r.record.Error, _ = event.Data["error"].(string)
	}
}

func (r *Recorder) node(nodeID string, at time.Time) *models.NodeRunState {
	state, ok := r.record.Nodes[nodeID]
	if !ok {
		state = &models.NodeRunState{StartedAt: at}
		r.record.Nodes[nodeID] = state
	}

	return state
}

// Snapshot returns a deep copy of the record.
func (r *Recorder) Snapshot() (*models.ExecutionRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	data, err := json.Marshal(r.record)
	if err != nil {
		return nil, err
	}

	var out models.ExecutionRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
