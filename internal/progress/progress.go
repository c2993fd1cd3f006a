package progress

import (
	"fmt"
	"sync"
)

// Status is the lifecycle position of a single step.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// Step identifiers used by the consolidation pipeline.
const (
	StepQueryDB               = "query-db"
	StepComputeTopicEmbedding = "compute-topic-embedding"
	StepLoadEmbeddings        = "load-embeddings"
	StepComputeEmbeddings     = "compute-embeddings"
	StepCalculateSimilarity   = "calculate-similarity"
	StepLLMRefine             = "llm-refine"
)

// Step is an immutable record; transitions produce a new value.
type Step struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Visible  bool   `json:"visible"`
}

// Snapshot is a consistent view of the whole step list. Published snapshots are never mutated.
type Snapshot struct {
	Steps            []Step `json:"steps"`
	CurrentStepIndex int    `json:"currentStepIndex"`
	OverallProgress  int    `json:"overallProgress"`
	CurrentMessage   string `json:"currentMessage"`
}

// Step returns the step with the given id.
func (s *Snapshot) Step(id string) (Step, bool) {
	if s == nil {
		return Step{}, false
	}
	for _, step := range s.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// StepIDs lists step identifiers in order.
func (s *Snapshot) StepIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.Steps))
	for i, step := range s.Steps {
		ids[i] = step.ID
	}
	return ids
}

// Sink receives every published snapshot; nil means the progress was discarded.
type Sink interface {
	ProgressUpdated(snapshot *Snapshot)
}

// Tracker owns the step list of one session.
type Tracker struct {
	mu      sync.Mutex
	current *Snapshot
	sink    Sink
}

// NewTracker creates an empty tracker publishing to sink (which may be nil).
func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink}
}

// Snapshot returns the latest published snapshot or nil.
func (t *Tracker) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Append adds steps to the end of the list.
func (t *Tracker) Append(steps ...Step) error {
	t.mu.Lock()
	var prev []Step
	index := 0
	message := ""
	if t.current != nil {
		prev = t.current.Steps
		index = t.current.CurrentStepIndex
		message = t.current.CurrentMessage
	}
	next := make([]Step, 0, len(prev)+len(steps))
	next = append(next, prev...)
	for _, step := range steps {
		for _, existing := range next {
			if existing.ID == step.ID {
				t.mu.Unlock()
				return fmt.Errorf("append step %s: already present", step.ID)
			}
		}
		if step.Status == "" {
			step.Status = StatusPending
		}
		step.Progress = cloneProgress(step.Progress)
		next = append(next, step)
	}
	snap := build(next, index, message)
	t.current = snap
	t.publish(snap)
	t.mu.Unlock()
	return nil
}

// Update moves a step forward. Message and progress updates within in_progress are allowed.
func (t *Tracker) Update(id string, status Status, message string, percent *int) error {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return fmt.Errorf("update step %s: progress discarded", id)
	}
	idx := -1
	for i, step := range t.current.Steps {
		if step.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return fmt.Errorf("update step %s: unknown step", id)
	}
	old := t.current.Steps[idx]
	if err := checkTransition(old.Status, status, idx); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("update step %s: %w", id, err)
	}

	replaced := old
	replaced.Status = status
	if message != "" {
		replaced.Message = message
	}
	if percent != nil {
		replaced.Progress = cloneProgress(percent)
	}
	if status == StatusCompleted {
		full := 100
		replaced.Progress = &full
	}

	next := make([]Step, len(t.current.Steps))
	copy(next, t.current.Steps)
	next[idx] = replaced

	currentMessage := t.current.CurrentMessage
	if message != "" {
		currentMessage = message
	}
	snap := build(next, idx, currentMessage)
	t.current = snap
	t.publish(snap)
	t.mu.Unlock()
	return nil
}

// Discard drops the whole progress object, as done on fatal aborts.
func (t *Tracker) Discard() {
	t.mu.Lock()
	t.current = nil
	t.publish(nil)
	t.mu.Unlock()
}

// publish runs under t.mu so sinks observe snapshots in the order they were built.
func (t *Tracker) publish(snap *Snapshot) {
	if t.sink != nil {
		t.sink.ProgressUpdated(snap)
	}
}

func checkTransition(from, to Status, index int) error {
	if to.rank() < 0 {
		return fmt.Errorf("unknown status %q", to)
	}
	if from.Terminal() {
		return fmt.Errorf("step already %s", from)
	}
	if to.rank() < from.rank() {
		return fmt.Errorf("cannot move from %s back to %s", from, to)
	}
	if from == StatusPending && to.Terminal() && index != 0 {
		return fmt.Errorf("cannot move from %s to %s without starting", from, to)
	}
	return nil
}

func build(steps []Step, currentIndex int, message string) *Snapshot {
	return &Snapshot{
		Steps:            steps,
		CurrentStepIndex: currentIndex,
		OverallProgress:  Overall(steps),
		CurrentMessage:   message,
	}
}

// Overall computes finished/visible*100 plus the running step's share, clamped to [0,100].
func Overall(steps []Step) int {
	visible := 0
	finished := 0
	var running *Step
	for i := range steps {
		step := steps[i]
		if !step.Visible {
			continue
		}
		visible++
		if step.Status.Terminal() {
			finished++
		} else if step.Status == StatusInProgress && running == nil {
			running = &steps[i]
		}
	}
	if visible == 0 {
		return 0
	}
	share := 100.0 / float64(visible)
	value := float64(finished) * share
	if running != nil && running.Progress != nil {
		value += float64(*running.Progress) / 100.0 * share
	}
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	}
	return int(value)
}

// Percent is a helper for optional per-step progress values.
func Percent(v int) *int {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

func cloneProgress(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
