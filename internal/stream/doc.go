// Package stream runs a knowledge base as a continuously updated view over
// a stream of fact batches.
//
// Facts arrive in batches from any goroutine. Each batch lives in the model
// for a fixed window; a single owner goroutine applies batches, sweeps
// expired facts, re-evaluates on a fixed interval and pushes changed query
// answers to listeners.
//
//	e := stream.New(base)
//	e.Subscribe(query, func(u stream.Update) { ... })
//	go e.Run(ctx)
//	e.Enqueue(facts)
package stream
