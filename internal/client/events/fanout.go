// Package events содержит рассылку событий наблюдателям SDK.
package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Fanout рассылает события подписчикам типа O.
// Порядок вызова подписчиков не определен, подписчиков может не быть.
type Fanout[O any] struct {
	logger *slog.Logger
	subs   map[uint64]O
	mu     sync.RWMutex
	nextID uint64
}

// NewFanout создает пустую рассылку.
func NewFanout[O any](logger *slog.Logger) *Fanout[O] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout[O]{
		logger: logger,
		subs:   make(map[uint64]O),
	}
}

// Subscribe добавляет наблюдателя и возвращает функцию отписки.
// Повторный вызов функции отписки ничего не делает.
func (f *Fanout[O]) Subscribe(o O) (unsubscribe func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = o
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Len возвращает число подписчиков.
func (f *Fanout[O]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Notify вызывает fn для каждого подписчика.
// Снимок подписчиков берется до вызовов, поэтому наблюдатель может отписаться
// изнутри обработчика. Паника в обработчике логируется и не мешает остальным.
func (f *Fanout[O]) Notify(event string, fn func(O)) {
	f.mu.RLock()
	snapshot := make([]O, 0, len(f.subs))
	for _, o := range f.subs {
		snapshot = append(snapshot, o)
	}
	f.mu.RUnlock()

	for _, o := range snapshot {
		f.call(event, o, fn)
	}
}

func (f *Fanout[O]) call(event string, o O, fn func(O)) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("observer panicked",
				slog.String("event", event),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(o)
}
