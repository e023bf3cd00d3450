// Copyright (c) 2025 The linrt Authors
// SPDX-License-Identifier: MIT

// Command linrtd loads a program image, starts a work-stealing worker
// pool sized to GOMAXPROCS (or -workers), drives it through rounds
// until no worker produces further work, and prints the resulting node
// and fact state.
//
// It does not implement the bytecode interpreter that would normally
// drive package exec's Setup/Stage/Process/Cleanup sequence: that
// loader is out of scope for this runtime. In its place, linrtd runs a
// single built-in rule (see demo.go) against a synthetic in-memory
// program image, exercising every other package — image, registry,
// node, store, exec, scheduler — end to end.
package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dreamware/linrt/exec"
	"github.com/dreamware/linrt/gc"
	"github.com/dreamware/linrt/image"
	"github.com/dreamware/linrt/internal/pool"
	"github.com/dreamware/linrt/node"
	"github.com/dreamware/linrt/registry"
	"github.com/dreamware/linrt/scheduler"
	"github.com/dreamware/linrt/tuple"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	workers := flag.Int("workers", 0, "number of scheduler workers (0 = GOMAXPROCS)")
	numNodes := flag.Int("nodes", 4, "number of demo nodes to load")
	eventsPerNode := flag.Int("events-per-node", 3, "number of demo event tuples seeded per node")
	timeout := flag.Duration("timeout", 5*time.Second, "maximum time to let the run drive rounds before giving up")
	flag.Parse()

	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Printf("linrtd: automaxprocs: %v", err)
	}

	numWorkers := *workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	if err := run(numWorkers, *numNodes, *eventsPerNode, *timeout); err != nil {
		log.Fatalf("linrtd: %v", err)
	}
}

func run(numWorkers, numNodes, eventsPerNode int, timeout time.Duration) error {
	table, err := image.Load(bytes.NewReader(buildDemoImage(numNodes)))
	if err != nil {
		return err
	}

	reg, err := registry.Load(table, demoPredicates)
	if err != nil {
		return err
	}

	schedPool := scheduler.New(numWorkers)

	nodes := make([]*node.Node, len(table.Entries))
	owners := make(map[tuple.NodeID]*scheduler.Worker, len(table.Entries))
	for i, e := range table.Entries {
		n := reg.FindNode(e.FakeID)
		nodes[i] = n
		owners[e.FakeID] = schedPool.AssignNode(n)
	}

	states := make([]*exec.State, numWorkers)
	for i := range states {
		states[i] = exec.New(1, len(demoPredicates), pool.New[tuple.Cons](nil), pool.New[tuple.Struct](nil))
	}

	seedEvents(owners, nodes, eventsPerNode)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	candidates := gc.New()
	if err := schedPool.Run(ctx, demoFire(states, candidates), demoRoundEnd(nodes, candidates, schedPool)); err != nil && ctx.Err() == nil {
		return err
	}

	log.Printf("linrtd: nodes %s", reg.String())
	for _, line := range reg.PrintSorted() {
		log.Println(line)
	}
	log.Printf("linrtd: total facts: %d", reg.TotalFacts())
	for _, line := range reg.DumpAll() {
		log.Println(line)
	}

	// Shutdown: every node's store is wiped, surfacing whatever GC
	// candidates that final release produces so they are drained (and
	// logged) rather than silently dropped on process exit.
	for _, n := range nodes {
		candidates.Add(n.Store.Wipeout()...)
	}
	for _, id := range candidates.Drain() {
		log.Printf("linrtd: shutdown wipeout reclaimed node %d", id)
	}
	return nil
}
