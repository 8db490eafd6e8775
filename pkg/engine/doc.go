/*
Package engine runs typed tasks on a fixed pool of workers and reports their
completion through a pollable file descriptor.

# Overview

The caller owns an event loop. It submits tasks, registers Fd with its
poller, and calls Harvest whenever the descriptor becomes readable:

	reg := handler.NewRegistry[*mongotask.Session]()
	_ = mongotask.Register(reg)

	eng, err := engine.New(engine.DefaultConfig(), session, reg)
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	_ = eng.Submit(mongotask.TypeCommand, mongotask.Command{Database: "admin", Command: bson.D{{"ping", 1}}}, requestID)

	fds := []unix.PollFd{{Fd: int32(eng.Fd()), Events: unix.POLLIN}}
	for {
		if _, err := unix.Poll(fds, -1); err != nil && err != unix.EINTR {
			log.Fatal(err)
		}
		finished, err := eng.Harvest()
		...
		for _, t := range finished {
			deliver(t.Opaque(), t.Result(), t.Err())
		}
	}

Any number of completions between two harvests produce a single readable
event. Harvest returns all of them, in submission order, and makes the
descriptor unreadable again.

# Lifecycle

An Engine moves through created, running, stopped and closed. Stop lets
every task submitted before it run to completion, then joins the workers
within Config.StopTimeout. Harvest keeps working after Stop, so the last
results can still be collected. Close releases the descriptor once the
workers are joined.

# Configuration

DefaultConfig returns four workers and a ten second stop timeout.
ConfigFromEnv reads the same settings from COURIER_WORKERS,
COURIER_STOP_TIMEOUT, COURIER_NAMESPACE and COURIER_REQUIRED_TYPES.
*/
package engine
