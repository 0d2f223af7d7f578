package textpolicy

// Engine binds a Policy to a keyword rotator. It is safe for concurrent use.
type Engine struct {
	policy          Policy
	rotator         *KeywordRotator
	keywordsPerPost int
}

// NewEngine creates an engine. rotator may be nil when no keywords are configured.
func NewEngine(policy Policy, rotator *KeywordRotator, keywordsPerPost int) *Engine {
	if rotator == nil {
		rotator = NewKeywordRotator(nil)
	}
	return &Engine{policy: policy, rotator: rotator, keywordsPerPost: keywordsPerPost}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Compose draws keywords only for text that will be decorated, so verbatim
// posts do not advance the rotation.
func (e *Engine) Compose(raw, signature string, target Target) string {
	in := Input{Raw: raw, Signature: signature, Target: target}
	if e.policy.HiddenMode != "" && Decorates(raw, signature, e.policy) {
		in.Keywords = e.rotator.Take(e.keywordsPerPost)
	}
	return Compose(in, e.policy)
}

// Verbatim returns raw as it is published when no decoration applies.
func (e *Engine) Verbatim(raw string) string {
	return e.policy.Verbatim(raw)
}
