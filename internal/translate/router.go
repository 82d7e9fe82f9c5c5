package translate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoTranslators means no registered translation backend was available
// at construction time. A router cannot be built without at least one.
var ErrNoTranslators = errors.New("no translation services available")

// Translation is the raw output of a single backend call.
type Translation struct {
	Text       string
	Confidence float64
}

// Translator is a single translation backend. Availability is declared up
// front (a blank credential makes a backend unavailable) and does not
// change over the router's lifetime.
type Translator interface {
	Available() bool
	Translate(ctx context.Context, text, sourceLang, targetLang string) (Translation, error)
}

// Result is a routed translation, tagged with the backend that produced it.
// Fallback is true when the affinity/primary backend did not serve the call.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Service    string  `json:"service_used"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Candidate registers one backend with the router. Quality orders the
// default choice when no affinity rule matches; higher wins.
type Candidate struct {
	Name       string
	Quality    int
	Translator Translator
}

// Rule routes any pair involving Language to the named backend. Rules are
// evaluated in order, so faster backends belong first.
type Rule struct {
	Language string
	Provider string
}

// AggregateError reports that both the primary backend and its fallback
// failed for one call.
type AggregateError struct {
	Primary     string
	PrimaryErr  error
	Fallback    string
	FallbackErr error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("all translation services failed: %s: %v; %s (fallback): %v",
		e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

func (e *AggregateError) Unwrap() []error { return []error{e.PrimaryErr, e.FallbackErr} }

// Router picks a primary and fallback backend per language pair. The policy
// is a data table, not control flow: affinity rules first, then the
// highest-quality available backend.
type Router struct {
	candidates []Candidate
	rules      []Rule
	logger     *zap.SugaredLogger
}

// NewRouter builds a router over the registered candidates. It fails with
// ErrNoTranslators when none of them is available.
func NewRouter(candidates []Candidate, rules []Rule, logger *zap.SugaredLogger) (*Router, error) {
	available := 0
	for _, c := range candidates {
		if c.Translator.Available() {
			available++
		}
	}
	if available == 0 {
		return nil, ErrNoTranslators
	}
	return &Router{candidates: candidates, rules: rules, logger: logger}, nil
}

func (r *Router) byName(name string) *Candidate {
	for i := range r.candidates {
		if r.candidates[i].Name == name {
			return &r.candidates[i]
		}
	}
	return nil
}

// bestAvailable returns the highest-quality available candidate, excluding
// the named one.
func (r *Router) bestAvailable(exclude string) *Candidate {
	var best *Candidate
	for i := range r.candidates {
		c := &r.candidates[i]
		if c.Name == exclude || !c.Translator.Available() {
			continue
		}
		if best == nil || c.Quality > best.Quality {
			best = c
		}
	}
	return best
}

// pick resolves the primary and fallback candidates for a language pair.
// A rule match names the primary even when that backend is unavailable;
// the execution path then skips straight to the fallback and flags the
// result accordingly.
func (r *Router) pick(sourceLang, targetLang string) (primary, fallback *Candidate) {
	for _, rule := range r.rules {
		if rule.Language != sourceLang && rule.Language != targetLang {
			continue
		}
		if c := r.byName(rule.Provider); c != nil {
			primary = c
			break
		}
	}
	if primary == nil {
		primary = r.bestAvailable("")
	}
	fallback = r.bestAvailable(primary.Name)
	return primary, fallback
}

// Translate routes one call: primary first, then fallback on failure. When
// both fail the error names both backends and both causes.
func (r *Router) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	primary, fallback := r.pick(sourceLang, targetLang)

	if primary.Translator.Available() {
		r.logger.Infow("translating", "service", primary.Name, "source", sourceLang, "target", targetLang)
		out, err := primary.Translator.Translate(ctx, text, sourceLang, targetLang)
		if err == nil {
			return Result{Text: out.Text, Confidence: out.Confidence, Service: primary.Name}, nil
		}
		if fallback == nil {
			return Result{}, fmt.Errorf("%s: %w", primary.Name, err)
		}
		r.logger.Warnw("translation failed, trying fallback",
			"service", primary.Name, "fallback", fallback.Name, "error", err)
		out, ferr := fallback.Translator.Translate(ctx, text, sourceLang, targetLang)
		if ferr != nil {
			return Result{}, &AggregateError{
				Primary: primary.Name, PrimaryErr: err,
				Fallback: fallback.Name, FallbackErr: ferr,
			}
		}
		return Result{Text: out.Text, Confidence: out.Confidence, Service: fallback.Name, Fallback: true}, nil
	}

	// Affinity backend is registered but unavailable; serve the call from
	// the fallback without attempting the primary.
	if fallback == nil {
		return Result{}, fmt.Errorf("%s unavailable: %w", primary.Name, ErrNoTranslators)
	}
	r.logger.Infow("affinity service unavailable, using fallback",
		"service", primary.Name, "fallback", fallback.Name)
	out, err := fallback.Translator.Translate(ctx, text, sourceLang, targetLang)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", fallback.Name, err)
	}
	return Result{Text: out.Text, Confidence: out.Confidence, Service: fallback.Name, Fallback: true}, nil
}

// DefaultRules is the stock affinity table: Groq is fast for swahili
// pairs, the NLLB deployment has seen kikuyu training data.
func DefaultRules() []Rule {
	return []Rule{
		{Language: "swahili", Provider: ServiceGroq},
		{Language: "kikuyu", Provider: ServiceHF},
	}
}
