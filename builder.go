package dagrun

import (
	"fmt"

	"github.com/dagrun/dagrun/pkg/api"
)

// Builder provides a fluent API for defining dependency graphs by name:
//
//	wf, err := dagrun.New("trading-cycle").
//	    Step("fetch", fetchPrices).
//	    Step("analyze", analyze, "fetch").
//	    Step("execute", placeOrders, "analyze").
//	    Step("persist", persistResults, "analyze").
//	    MaxConcurrent(2).
//	    Build()
//
// Dependencies may reference steps declared later; resolution happens in
// Build. A dependency name with no matching step fails Build.
type Builder struct {
	name         string
	order        []string
	fns          map[string]StepFunc
	deps         map[string][]string
	listeners    map[string][]StepListener
	contextSeed  map[string]any
	contextKeys  []string
	maxConc      int
	onCompletion []func(*Workflow)
	observer     Observer
}

// New creates a new workflow builder with the given name.
func New(name string) *Builder {
	return &Builder{
		name:        name,
		fns:         make(map[string]StepFunc),
		deps:        make(map[string][]string),
		listeners:   make(map[string][]StepListener),
		contextSeed: make(map[string]any),
	}
}

// Name returns the workflow name.
func (b *Builder) Name() string {
	return b.name
}

// Step declares a step with the given name, function, and dependency
// names. Declaring the same name twice, an empty name, or a nil function
// panics: these are programming errors, caught at definition time.
func (b *Builder) Step(name string, fn StepFunc, deps ...string) *Builder {
	if name == "" {
		panic("dagrun: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("dagrun: step %q has nil function", name))
	}
	if _, exists := b.fns[name]; exists {
		panic(fmt.Sprintf("dagrun: step %q declared twice", name))
	}

	b.order = append(b.order, name)
	b.fns[name] = fn
	b.deps[name] = append([]string(nil), deps...)
	return b
}

// Listen attaches a StepListener to the named step. The step may be
// declared before or after; attachment is resolved in Build.
func (b *Builder) Listen(step string, l StepListener) *Builder {
	if l != nil {
		b.listeners[step] = append(b.listeners[step], l)
	}
	return b
}

// MaxConcurrent sets the workflow's concurrency bound.
func (b *Builder) MaxConcurrent(n int) *Builder {
	b.maxConc = n
	return b
}

// Context seeds the shared context with a key/value pair.
func (b *Builder) Context(key string, value any) *Builder {
	if _, exists := b.contextSeed[key]; !exists {
		b.contextKeys = append(b.contextKeys, key)
	}
	b.contextSeed[key] = value
	return b
}

// OnCompletion registers a completion callback on the built workflow.
func (b *Builder) OnCompletion(cb func(*Workflow)) *Builder {
	if cb != nil {
		b.onCompletion = append(b.onCompletion, cb)
	}
	return b
}

// Observe attaches an Observer to the built workflow.
func (b *Builder) Observe(obs Observer) *Builder {
	b.observer = obs
	return b
}

// Build resolves dependency names and assembles the Workflow.
func (b *Builder) Build() (*Workflow, error) {
	wf := api.NewWorkflow(b.name)
	if b.maxConc > 0 {
		wf.SetMaxConcurrentSteps(b.maxConc)
	}
	if b.observer != nil {
		wf.SetObserver(b.observer)
	}
	for _, cb := range b.onCompletion {
		wf.OnCompletion(cb)
	}
	for _, k := range b.contextKeys {
		wf.AddContext(k, b.contextSeed[k])
	}

	steps := make(map[string]*Step, len(b.order))
	for _, name := range b.order {
		step := api.NewStep(name, b.fns[name])
		for _, l := range b.listeners[name] {
			step.AddListener(l)
		}
		steps[name] = step
		if err := wf.AddStep(step); err != nil {
			return nil, err
		}
	}

	for step := range b.listeners {
		if _, ok := steps[step]; !ok {
			return nil, fmt.Errorf("dagrun: listener attached to unknown step %q", step)
		}
	}

	for _, name := range b.order {
		for _, dep := range b.deps[name] {
			target, ok := steps[dep]
			if !ok {
				return nil, fmt.Errorf("dagrun: step %q depends on unknown step %q", name, dep)
			}
			target.AddNextStep(steps[name])
		}
	}

	return wf, nil
}

// MustBuild is like Build but panics on error.
// Useful for initialization in main().
func (b *Builder) MustBuild() *Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
