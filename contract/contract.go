package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
)

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IMessageStore is the durable record of every message ever submitted.
// Append must be atomic: either the full message is recorded under a
// fresh monotonically increasing id, or nothing is written at all.
// Implementations must be safe for use concurrently with live traffic.
type IMessageStore interface {
	Append(message domain.Message) (int64, error)
	List(filter domain.ListFilter) ([]domain.Message, error)
	Delete(id int64) (bool, error)
}
