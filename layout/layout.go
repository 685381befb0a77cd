/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package layout packs a mix of position-independent and position-fixed
// application binaries into a contiguous flash region, inserting padding
// regions where alignment or fixed addresses require them.
package layout

import (
	"errors"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/util"
)

// Position-fixed binaries are only guaranteed to tolerate being moved down
// to a 1024-byte boundary.
const FixedAddressAlignment = 1024

// Permutation search cutoff.  Once this many orderings have been tried the
// search stops and keeps the best layout found so far, which is valid but not
// necessarily minimal.  With more than 9 flexible apps alongside fixed ones
// the planner skips the search and uses a greedy ordering instead.
const maxPermutations = 100000

// ErrLayoutImpossible is wrapped by planning failures: a fixed app whose
// candidates all lie below the start address, or below every reachable
// cursor position.
var ErrLayoutImpossible = errors.New("no feasible flash layout")

// App is one application to place.
type App struct {
	// Index into the caller's parallel binary list.
	Index int

	// Size of the app's binary in bytes.
	Size uint32

	// FixedFlash holds the candidate flash addresses of a position-fixed
	// app, already aligned down to FixedAddressAlignment.  Empty for
	// position-independent apps, which go at any page boundary.
	FixedFlash []uint64
}

func (a *App) fixed() bool {
	return len(a.FixedFlash) > 0
}

// Entry is one placed region of the final layout.
type Entry struct {
	Address uint64
	Size    uint32

	// Index into the caller's binary list; -1 for synthetic padding.
	Index int

	Padding bool
}

// Plan computes an ordered layout for the given apps starting at
// startAddress.  Fixed apps keep their relative order by first candidate
// address; flexible apps are permuted (up to the search cutoff) to minimize
// total padding.  Zero total padding short-circuits the search.
func Plan(apps []App, startAddress uint64, pageSize uint32) ([]Entry, error) {
	if len(apps) == 0 {
		return []Entry{}, nil
	}
	if pageSize == 0 {
		return nil, util.NewTockloadError("page size is zero")
	}

	var fixed []App
	var flexible []App
	for _, app := range apps {
		if app.fixed() {
			fixed = append(fixed, app)
		} else {
			flexible = append(flexible, app)
		}
	}

	// Fixed apps are placed in candidate-address order; their addresses are
	// constraints, not choices.
	sort.SliceStable(fixed, func(i, j int) bool {
		return fixed[i].FixedFlash[0] < fixed[j].FixedFlash[0]
	})

	for _, app := range fixed {
		viable := false
		for _, cand := range app.FixedFlash {
			if cand >= startAddress {
				viable = true
				break
			}
		}
		if !viable {
			return nil, util.FmtChildTockloadError(ErrLayoutImpossible,
				"app %d is fixed below the application region start 0x%x",
				app.Index, startAddress)
		}
	}

	var best []Entry
	bestPadding := uint64(math.MaxUint64)

	tryOrder := func(order []int) {
		entries, padding, ok := walk(flexible, fixed, order, startAddress,
			pageSize)
		if ok && padding < bestPadding {
			bestPadding = padding
			best = entries
		}
	}

	if len(flexible) > 9 && len(fixed) > 0 {
		// The factorial search would blow the cutoff before covering even a
		// fraction of the orderings; place largest-first instead.
		log.Debugf("planner: %d flexible apps; using greedy ordering",
			len(flexible))
		tryOrder(greedyOrder(flexible))
	} else {
		permute(len(flexible), func(order []int) bool {
			tryOrder(order)
			return bestPadding == 0
		})
	}

	if best == nil {
		return nil, util.FmtChildTockloadError(ErrLayoutImpossible,
			"no ordering of %d flexible and %d fixed apps fits at 0x%x",
			len(flexible), len(fixed), startAddress)
	}

	log.Debugf("planner: minimum padding is %d bytes", bestPadding)
	return best, nil
}

// walk places apps left to right for one flexible ordering.  At each step
// the next app is the flexible one in permutation order, unless it no
// longer fits below the next fixed app's candidate address.
func walk(flexible []App, fixed []App, order []int, startAddress uint64,
	pageSize uint32) ([]Entry, uint64, bool) {

	var entries []Entry
	var totalPadding uint64

	cursor := startAddress
	oi := 0 // next position in the flexible ordering
	fi := 0 // next fixed app

	for {
		var insertFlexible bool

		if oi < len(order) {
			if fi < len(fixed) {
				cand, ok := nextCandidate(&fixed[fi], cursor)
				if !ok {
					return nil, 0, false
				}
				insertFlexible =
					uint64(flexible[order[oi]].Size) <= cand-cursor
			} else {
				insertFlexible = true
			}
		} else {
			if fi >= len(fixed) {
				break
			}
			insertFlexible = false
		}

		var target uint64
		if insertFlexible {
			target = alignUp(cursor, uint64(pageSize))
		} else {
			cand, ok := nextCandidate(&fixed[fi], cursor)
			if !ok {
				// The cursor overran every candidate; this ordering cannot
				// work.
				return nil, 0, false
			}
			target = cand
		}

		if target > cursor {
			pad := target - cursor
			entries = append(entries, Entry{
				Address: cursor,
				Size:    uint32(pad),
				Index:   -1,
				Padding: true,
			})
			totalPadding += pad
			cursor = target
		}

		if insertFlexible {
			app := flexible[order[oi]]
			entries = append(entries, Entry{
				Address: cursor,
				Size:    app.Size,
				Index:   app.Index,
			})
			cursor += uint64(app.Size)
			oi++
		} else {
			app := fixed[fi]
			entries = append(entries, Entry{
				Address: cursor,
				Size:    app.Size,
				Index:   app.Index,
			})
			cursor += uint64(app.Size)
			fi++
		}
	}

	return entries, totalPadding, true
}

// nextCandidate picks the smallest candidate address not below the cursor.
func nextCandidate(app *App, cursor uint64) (uint64, bool) {
	best := uint64(math.MaxUint64)
	found := false
	for _, cand := range app.FixedFlash {
		if cand >= cursor && cand < best {
			best = cand
			found = true
		}
	}
	return best, found
}

// greedyOrder places the largest flexible apps first, which tends to fill
// the gaps below fixed apps tightly.
func greedyOrder(flexible []App) []int {
	order := make([]int, len(flexible))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return flexible[order[i]].Size > flexible[order[j]].Size
	})
	return order
}

func alignUp(v uint64, align uint64) uint64 {
	if v%align == 0 {
		return v
	}
	return v + align - v%align
}

// AlignDownFixed aligns a fixed app's linked address down to the alignment
// its toolchain actually requires.
func AlignDownFixed(address uint64) uint64 {
	return address - address%FixedAddressAlignment
}

// permute invokes fn with every permutation of [0, n), up to the search
// cutoff, stopping early when fn returns true.
func permute(n int, fn func(order []int) bool) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	if n == 0 {
		fn(order)
		return
	}

	// Heap's algorithm, iterative form.
	counters := make([]int, n)
	count := 1
	if fn(order) {
		return
	}

	i := 0
	for i < n && count < maxPermutations {
		if counters[i] < i {
			if i%2 == 0 {
				order[0], order[i] = order[i], order[0]
			} else {
				order[counters[i]], order[i] = order[i], order[counters[i]]
			}

			count++
			if fn(order) {
				return
			}

			counters[i]++
			i = 0
		} else {
			counters[i] = 0
			i++
		}
	}
}
