package scene

// CacheState tracks where the cache is in its refill lifecycle.
//
// The legitimate transitions are: Uninitialized -> Initialized (once, via
// Initialize), Initialized -> StartUpdate (a refill was requested),
// StartUpdate -> InUpdate (the worker picked it up), InUpdate -> Ready (a
// buffer was published) or InUpdate -> StartUpdate (allocation failure
// retry). Invalidate forces Initialized from anywhere; SetSuspend(true)
// forces Suspended from anywhere and SetSuspend(false) only lifts it.
type CacheState int

const (
	CacheUninitialized CacheState = iota
	CacheInitialized
	CacheStartUpdate
	CacheInUpdate
	CacheReady
	CacheSuspended
)

func (s CacheState) String() string {
	switch s {
	case CacheUninitialized:
		return "uninitialized"
	case CacheInitialized:
		return "initialized"
	case CacheStartUpdate:
		return "start_update"
	case CacheInUpdate:
		return "in_update"
	case CacheReady:
		return "ready"
	case CacheSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}
