// Package manager is the request orchestration layer. A Manager takes image requests
// from requesters, looks each one up in the memory cache, then the disk store, then the
// network, and delivers the result to the requester's listener.
//
// The manager's bookkeeping (pending cache lookups, in-flight downloads, the requester
// index and the failed URL set) is guarded by one mutex. Every state change, including
// the decision to deliver a result, is made while holding it. Listener calls and
// Fetcher Start and Cancel calls are collected during the change and made after the
// mutex is released. Disk lookups, decodes and network fetches run on worker goroutines.
//
// Guarantees:
//   - at most one network fetch per URL is active at any time, no matter how many
//     requesters ask for it
//   - a fetch result is delivered to every requester attached to the download at the
//     time of delivery
//   - once Cancel(id) returns, no delivery to a listener registered under id is decided
//     any more, and a download left with no waiters is canceled. A delivery decided
//     before the Cancel may still be in progress, as with time.Timer.Stop.
//   - a URL whose fetch failed is never fetched again for the life of the Manager
//
// Listeners are called without any manager lock held, on the goroutine that completed
// the work (or on the caller of Request for a memory hit). A listener may call Request,
// Cancel, Stats, ClearCache or Close, for example to request a fallback URL from
// OnFailure. Fetch blocks and should not be called from a listener.
package manager
