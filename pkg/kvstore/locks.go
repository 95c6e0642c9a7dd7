/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kvstore

import (
	"sort"
	"sync"
)

// keyLock is a mutex shared by every in-flight transaction on one key.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key. Entries are reference counted and
// dropped once no transaction holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyLocks() *keyLocks {
	return &keyLocks{
		locks: make(map[string]*keyLock),
	}
}

func (l *keyLocks) acquire(key string) *keyLock {
	l.mu.Lock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}

	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	return kl
}

func (l *keyLocks) release(key string, kl *keyLock) {
	kl.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// lock blocks until key is exclusively held and returns the unlock func.
func (l *keyLocks) lock(key string) func() {
	kl := l.acquire(key)

	return func() {
		l.release(key, kl)
	}
}

// lockAll locks every distinct key in ascending order so that overlapping
// multi-key transactions cannot deadlock.
func (l *keyLocks) lockAll(keys []string) func() {
	ordered := uniqueSorted(keys)
	held := make([]*keyLock, len(ordered))

	for i, key := range ordered {
		held[i] = l.acquire(key)
	}

	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			l.release(ordered[i], held[i])
		}
	}
}

// size reports how many keys currently have a lock entry.
func (l *keyLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))

	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
