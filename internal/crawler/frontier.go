package crawler

import (
	"context"
	"net/url"
	"sync"

	"github.com/nao1215/sitecrawler/internal/model"
)

// OfferResult tells the caller what the frontier did with a candidate.
type OfferResult int

const (
	// OfferAccepted means the URL was marked seen and queued.
	OfferAccepted OfferResult = iota

	// OfferDuplicate means the uqId was already seen.
	OfferDuplicate

	// OfferTooDeep means the candidate exceeds the maximum depth.
	OfferTooDeep

	// OfferExternal means the URL is outside the root origin. It is marked
	// seen so that it is reported once, but never queued.
	OfferExternal

	// OfferOutOfScope means single-page mode or a path pattern excluded it.
	OfferOutOfScope

	// OfferInvalid means the URL could not be normalized.
	OfferInvalid
)

// String returns a short label used in logs and metrics.
func (r OfferResult) String() string {
	switch r {
	case OfferAccepted:
		return "accepted"
	case OfferDuplicate:
		return "duplicate"
	case OfferTooDeep:
		return "too-deep"
	case OfferExternal:
		return "external"
	case OfferOutOfScope:
		return "out-of-scope"
	default:
		return "invalid"
	}
}

// Candidate is a raw link offered to the frontier.
type Candidate struct {
	// RawURL is the link as written in the page, possibly relative.
	RawURL string

	// Base is the URL RawURL is resolved against. Nil for seeds.
	Base *url.URL

	SourceUqID string
	Source     model.SourceAttribute
	Depth      int
}

// FrontierStats is a snapshot of frontier counters.
type FrontierStats struct {
	Seen       int
	Queued     int
	InFlight   int
	Accepted   int
	Duplicates int
	External   int
	Dropped    int
}

// Frontier is the shared work queue of a crawl.
//
// The seen set and the FIFO queue are guarded by one mutex, so the
// check-and-mark in Offer is atomic: when several workers offer the same
// uqId concurrently exactly one of them is accepted. Take blocks on a
// condition variable while the queue is empty but fetches are still in
// flight, and returns false once the crawl is drained.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	seen     map[string]struct{}
	queue    []model.FoundURL
	head     int
	inFlight int
	closed   bool

	normalizer *Normalizer
	root       *url.URL
	policy     OriginPolicy
	maxDepth   int
	maxURLs    int
	singlePage bool
	filter     pathFilter

	accepted   int
	duplicates int
	external   int
	dropped    int
}

// FrontierOption configures a Frontier.
type FrontierOption func(*Frontier)

// WithFrontierMaxDepth drops candidates deeper than depth. 0 means unlimited.
func WithFrontierMaxDepth(depth int) FrontierOption {
	return func(f *Frontier) {
		f.maxDepth = depth
	}
}

// WithMaxURLs stops accepting discovered URLs once limit URLs were queued.
// Seeds are always accepted. 0 means unlimited.
func WithMaxURLs(limit int) FrontierOption {
	return func(f *Frontier) {
		f.maxURLs = limit
	}
}

// WithSinglePage only accepts seeds and the redirects they produce.
func WithSinglePage(singlePage bool) FrontierOption {
	return func(f *Frontier) {
		f.singlePage = singlePage
	}
}

// WithOriginPolicy sets how external URLs are told apart.
func WithOriginPolicy(policy OriginPolicy) FrontierOption {
	return func(f *Frontier) {
		f.policy = policy
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *Normalizer) FrontierOption {
	return func(f *Frontier) {
		if n != nil {
			f.normalizer = n
		}
	}
}

// WithPathPatterns sets ignore and follow glob patterns applied to the
// path of discovered URLs. Seeds are never filtered.
func WithPathPatterns(ignore, follow []string) FrontierOption {
	return func(f *Frontier) {
		f.filter = pathFilter{ignore: ignore, follow: follow}
	}
}

// NewFrontier creates a frontier for a crawl rooted at root. root must be
// normalized; it decides which URLs are external.
func NewFrontier(root *url.URL, opts ...FrontierOption) *Frontier {
	f := &Frontier{
		seen:       make(map[string]struct{}),
		queue:      make([]model.FoundURL, 0),
		normalizer: NewNormalizer(false),
		root:       root,
	}
	f.cond = sync.NewCond(&f.mu)

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Offer normalizes c and queues it when it is new and in scope.
// The returned FoundURL is populated for every result except OfferInvalid.
func (f *Frontier) Offer(c Candidate) (OfferResult, model.FoundURL, error) {
	canonical, uqID, err := f.normalizer.Normalize(c.RawURL, c.Base)
	if err != nil {
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		return OfferInvalid, model.FoundURL{}, err
	}

	found := model.FoundURL{
		URL:        canonical,
		UqID:       uqID,
		SourceUqID: c.SourceUqID,
		Source:     c.Source,
		Depth:      c.Depth,
	}

	external := false
	if !c.Source.IsSeed() && f.root != nil {
		target, err := url.Parse(canonical)
		if err != nil {
			return OfferInvalid, model.FoundURL{}, &NormalizationError{Raw: c.RawURL, Err: err}
		}
		external = !f.policy.SameOrigin(f.root, target)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return OfferOutOfScope, found, ErrFrontierClosed
	}

	if _, ok := f.seen[uqID]; ok {
		f.duplicates++
		return OfferDuplicate, found, nil
	}

	if external {
		f.seen[uqID] = struct{}{}
		f.external++
		return OfferExternal, found, nil
	}

	if f.maxDepth > 0 && c.Depth > f.maxDepth {
		f.dropped++
		return OfferTooDeep, found, nil
	}

	if !c.Source.IsSeed() {
		if f.singlePage && c.Source != model.SourceRedirect {
			f.dropped++
			return OfferOutOfScope, found, nil
		}
		if !f.filter.allows(pathOf(canonical)) {
			f.dropped++
			return OfferOutOfScope, found, nil
		}
		if f.maxURLs > 0 && f.accepted >= f.maxURLs {
			f.dropped++
			return OfferOutOfScope, found, nil
		}
	}

	f.seen[uqID] = struct{}{}
	f.queue = append(f.queue, found)
	f.accepted++
	f.cond.Signal()

	return OfferAccepted, found, nil
}

// Take removes the next URL in FIFO order and marks it in flight.
// It blocks while the queue is empty and other fetches are in flight.
// It returns false when the frontier is drained or closed, or ctx is done.
func (f *Frontier) Take(ctx context.Context) (model.FoundURL, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if ctx.Err() != nil || f.closed {
			return model.FoundURL{}, false
		}
		if f.head < len(f.queue) {
			item := f.queue[f.head]
			f.queue[f.head] = model.FoundURL{}
			f.head++
			f.compactLocked()
			f.inFlight++
			return item, true
		}
		if f.inFlight == 0 {
			// Wake the other waiters so they observe the drained state too.
			f.cond.Broadcast()
			return model.FoundURL{}, false
		}
		f.cond.Wait()
	}
}

// compactLocked releases the consumed prefix of the queue.
func (f *Frontier) compactLocked() {
	if f.head == len(f.queue) {
		f.queue = f.queue[:0]
		f.head = 0
		return
	}
	if f.head > 1024 && f.head*2 > len(f.queue) {
		f.queue = append(f.queue[:0], f.queue[f.head:]...)
		f.head = 0
	}
}

// Done marks an item returned by Take as complete. Links discovered while
// processing it must be offered before calling Done.
func (f *Frontier) Done(model.FoundURL) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	if f.inFlight == 0 && f.head >= len(f.queue) {
		f.cond.Broadcast()
	}
}

// IsDrained reports whether the queue is empty and nothing is in flight.
func (f *Frontier) IsDrained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head >= len(f.queue) && f.inFlight == 0
}

// Close stops the frontier. Pending and future Take calls return false and
// Offer fails with ErrFrontierClosed.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Stats returns a snapshot of the frontier counters.
func (f *Frontier) Stats() FrontierStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FrontierStats{
		Seen:       len(f.seen),
		Queued:     len(f.queue) - f.head,
		InFlight:   f.inFlight,
		Accepted:   f.accepted,
		Duplicates: f.duplicates,
		External:   f.external,
		Dropped:    f.dropped,
	}
}

// pathOf returns the path of a canonical URL.
func pathOf(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return "/"
	}
	return u.Path
}
