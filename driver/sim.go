package driver

import (
	"context"
	"fmt"
	"sync"
)

// Call records one driver invocation for later inspection.
type Call struct {
	Op     string
	Target string
	Value  string
}

// SimDriver replays a scripted studio session without a browser. It backs
// dry runs and tests: element texts are seeded up front, faults are queued
// per operation and consumed in order.
type SimDriver struct {
	mu       sync.Mutex
	texts    map[string]string
	faults   map[string][]error
	snapshot []byte
	calls    []Call
}

func NewSimDriver() *SimDriver {
	return &SimDriver{
		texts:    map[string]string{},
		faults:   map[string][]error{},
		snapshot: []byte("sim-evidence"),
	}
}

// SetElementText seeds the text returned for a target.
func (d *SimDriver) SetElementText(target, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts[target] = text
}

// FailNext queues a one-shot fault for the given operation and target.
// Faults queued for the same key are consumed in FIFO order.
func (d *SimDriver) FailNext(op, target string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := faultKey(op, target)
	d.faults[key] = append(d.faults[key], err)
}

// SetSnapshot replaces the bytes returned by CaptureEvidence.
func (d *SimDriver) SetSnapshot(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = data
}

// Calls returns a copy of every invocation recorded so far.
func (d *SimDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *SimDriver) Navigate(ctx context.Context, url string) error {
	return d.perform(ctx, "navigate", url, "")
}

func (d *SimDriver) Click(ctx context.Context, target string) error {
	return d.perform(ctx, "click", target, "")
}

func (d *SimDriver) InputText(ctx context.Context, target, text string) error {
	return d.perform(ctx, "input", target, text)
}

func (d *SimDriver) SelectOption(ctx context.Context, target, option string) error {
	return d.perform(ctx, "select", target, option)
}

func (d *SimDriver) GetElementText(ctx context.Context, target string) (string, error) {
	if err := d.perform(ctx, "read-text", target, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.texts[target]
	if !ok {
		return "", fmt.Errorf("sim: no text for target %q", target)
	}
	return text, nil
}

func (d *SimDriver) CaptureEvidence(ctx context.Context) ([]byte, error) {
	if err := d.perform(ctx, "capture-evidence", "", ""); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.snapshot))
	copy(out, d.snapshot)
	return out, nil
}

func (d *SimDriver) perform(ctx context.Context, op, target, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: op, Target: target, Value: value})
	key := faultKey(op, target)
	if queue := d.faults[key]; len(queue) > 0 {
		err := queue[0]
		d.faults[key] = queue[1:]
		return err
	}
	return nil
}

func faultKey(op, target string) string {
	return op + " " + target
}
