package timemap

// EventHandlers holds the optional callbacks a TimeMap notifies.
//
// OnExpiration is the expiration notification: delivered at most once
// per expired entry, synchronously, before the entry is deleted. The
// map's lock is released for the duration of delivery, so the handler
// may call back into the map; Has and Get still observe the expiring
// entry.
//
// OnSet and OnDelete run while the map's lock is held and must not call
// back into the map.
type EventHandlers[K Key, V any] struct {
	OnSet        func(key K, value V)
	OnDelete     func(key K, value V)
	OnExpiration func(key K, value V)
}
