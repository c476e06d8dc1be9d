// Package providertest holds a scripted Provider for tests.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kubev2v/transcriber/internal/provider"
)

// Step is one scripted answer of Fetch.
type Step struct {
	Status    provider.Status
	ErrorText string
	Err       error
	// Anonymous leaves the transcript id out of the result.
	Anonymous bool
}

func (s Step) WithoutID() Step {
	s.Anonymous = true
	return s
}

func Completed() Step { return Step{Status: provider.StatusCompleted} }
func Processing() Step { return Step{Status: provider.StatusProcessing} }
func Queued() Step { return Step{Status: provider.StatusQueued} }
func Failed(text string) Step { return Step{Status: provider.StatusError, ErrorText: text} }
func Unreachable(err error) Step { return Step{Err: err} }
func Status(status provider.Status) Step { return Step{Status: status} }

type Submission struct {
	SourceURL   string
	Options     provider.SubmitOptions
	CallbackURL string
}

// Provider replays scripted steps per transcript id. The last step repeats
// once the script is consumed.
type Provider struct {
	mu          sync.Mutex
	scripts     map[string][]Step
	srt         map[string][]byte
	exportErr   error
	fetches     map[string]int
	exports     map[string]int
	submitID    string
	submitErr   error
	onSubmit    func(ctx context.Context)
	submissions []Submission
	pingErr     error
}

var _ provider.Provider = (*Provider)(nil)

func New() *Provider {
	return &Provider{
		scripts: make(map[string][]Step),
		srt:     make(map[string][]byte),
		fetches: make(map[string]int),
		exports: make(map[string]int),
	}
}

func (p *Provider) Script(id string, steps ...Step) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[id] = steps
	return p
}

func (p *Provider) WithSRT(id string, data string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.srt[id] = []byte(data)
	return p
}

func (p *Provider) FailExport(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exportErr = err
	return p
}

func (p *Provider) SubmitReturns(id string, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitID = id
	p.submitErr = err
	return p
}

// OnSubmit runs fn inside every Submit call before it answers.
func (p *Provider) OnSubmit(fn func(ctx context.Context)) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSubmit = fn
	return p
}

func (p *Provider) PingReturns(err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingErr = err
	return p
}

func (p *Provider) Submit(ctx context.Context, sourceURL string, opts provider.SubmitOptions, callbackURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onSubmit != nil {
		p.onSubmit(ctx)
	}
	p.submissions = append(p.submissions, Submission{SourceURL: sourceURL, Options: opts, CallbackURL: callbackURL})
	if p.submitErr != nil {
		return "", p.submitErr
	}
	if p.submitID == "" {
		return "", errors.New("no transcript id scripted")
	}
	return p.submitID, nil
}

func (p *Provider) Fetch(_ context.Context, providerJobID string) (*provider.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps, ok := p.scripts[providerJobID]
	if !ok || len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, providerJobID)
	}

	n := p.fetches[providerJobID]
	p.fetches[providerJobID] = n + 1
	step := steps[min(n, len(steps)-1)]
	if step.Err != nil {
		return nil, step.Err
	}
	result := &provider.Result{ID: providerJobID, Status: step.Status, ErrorText: step.ErrorText}
	if step.Anonymous {
		result.ID = ""
	}
	return result, nil
}

func (p *Provider) ToFinalFormat(_ context.Context, result *provider.Result) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exports[result.ID]++
	if p.exportErr != nil {
		return nil, p.exportErr
	}
	return append([]byte(nil), p.srt[result.ID]...), nil
}

func (p *Provider) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pingErr
}

func (p *Provider) Fetches(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[id]
}

func (p *Provider) Exports(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exports[id]
}

func (p *Provider) Submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Submission(nil), p.submissions...)
}
