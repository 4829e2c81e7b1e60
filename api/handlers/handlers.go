package handlers

import (
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/logger"
)

type Handlers struct {
	Queue *QueueHandler
}

func NewHandlers(svc *queue.Service, logger logger.Logger) *Handlers {
	return &Handlers{
		Queue: NewQueueHandler(svc, logger),
	}
}
