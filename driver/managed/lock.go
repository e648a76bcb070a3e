// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package managed

import "sync"

// upgradableLock is a readers-writer lock with an upgradable read mode.
//
// At most one goroutine holds the lock in upgradable mode at a time. It
// shares the lock with plain readers and can later be upgraded to exclusive
// without letting another writer in first: every exclusive acquisition,
// including upgrades, goes through the upgrade mutex.
type upgradableLock struct {
	upgrade sync.Mutex
	rw      sync.RWMutex
}

func (l *upgradableLock) RLock()   { l.rw.RLock() }
func (l *upgradableLock) RUnlock() { l.rw.RUnlock() }

func (l *upgradableLock) Lock() {
	l.upgrade.Lock()
	l.rw.Lock()
}

func (l *upgradableLock) Unlock() {
	l.rw.Unlock()
	l.upgrade.Unlock()
}

// UpgradableRLock acquires the lock in upgradable read mode. The returned
// guard must be released exactly once.
func (l *upgradableLock) UpgradableRLock() *lockGuard {
	l.upgrade.Lock()
	l.rw.RLock()
	return &lockGuard{l: l}
}

type lockGuard struct {
	l         *upgradableLock
	exclusive bool
}

// Upgrade turns an upgradable read into an exclusive lock. It waits for
// plain readers to drain. Upgrading an exclusive guard is a no-op.
func (g *lockGuard) Upgrade() {
	if g.exclusive {
		return
	}
	// no writer can get in between: they all need the upgrade mutex we hold
	g.l.rw.RUnlock()
	g.l.rw.Lock()
	g.exclusive = true
}

func (g *lockGuard) Exclusive() bool { return g.exclusive }

func (g *lockGuard) Release() {
	if g.exclusive {
		g.l.rw.Unlock()
	} else {
		g.l.rw.RUnlock()
	}
	g.l.upgrade.Unlock()
}
