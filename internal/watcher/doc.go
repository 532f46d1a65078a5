// Package watcher reports live changes under a scanned root.
//
// A Watcher picks its backend once, at construction:
//   - native: fsnotify, one watch per non-ignored directory
//   - polling: periodic walks diffed against the previous snapshot
//
// With BackendAuto the native backend is tried first and polling is used when
// fsnotify cannot be created or the process descriptor limit is too low.
//
// Raw events are coalesced per path by a Debouncer and delivered through a
// bounded queue. The producer side never blocks: when the queue is full the
// oldest event is dropped and reported as a watch_overflow warning.
//
// Usage:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Unsubscribe()
//
//	if err := w.Subscribe(ctx, root, func(ev watcher.Event) {
//	    fmt.Println(ev.Kind, ev.Path)
//	}); err != nil {
//	    return err
//	}
//	<-w.Done()
package watcher
