package rpc

import (
	"errors"
	"fmt"
	"slices"
)

// HandlerID identifies a registered handler. IDs start at 1 and are never
// reused within a Table.
type HandlerID uint64

// Handler answers one RPC call. params is a canonical value (see package
// value). Returning ErrNotHandled passes the call to the next handler.
type Handler func(method string, params any) (any, error)

// Table holds RPC handlers keyed by HandlerID.
//
// Table is not safe for concurrent use; it belongs to the application
// goroutine like the rest of the controller state.
type Table struct {
	next     HandlerID
	handlers map[HandlerID]Handler
}

// NewTable creates an empty handler table.
func NewTable() *Table {
	return &Table{handlers: make(map[HandlerID]Handler)}
}

// Add registers h and returns its identifier. A nil handler is not
// registered and yields 0.
func (t *Table) Add(h Handler) HandlerID {
	if h == nil {
		return 0
	}
	t.next++
	t.handlers[t.next] = h
	return t.next
}

// Remove unregisters id and reports whether it was registered.
func (t *Table) Remove(id HandlerID) bool {
	if _, ok := t.handlers[id]; !ok {
		return false
	}
	delete(t.handlers, id)
	return true
}

// Len returns the number of registered handlers.
func (t *Table) Len() int {
	return len(t.handlers)
}

// Dispatch offers the call to each handler in registration order until one
// accepts it. handled is false when every handler declined (or none is
// registered). A handler error or panic stops dispatch and is returned
// with handled set.
func (t *Table) Dispatch(method string, params any) (result any, handled bool, err error) {
	ids := make([]HandlerID, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		result, err = call(t.handlers[id], method, params)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		return result, true, err
	}
	return nil, false, nil
}

// call invokes h, converting a panic into ErrHandlerPanic.
func call(h Handler, method string, params any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(method, params)
}
