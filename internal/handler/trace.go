package handler

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ParseOrGenerateTraceID returns the client-supplied trace id when it is a
// valid UUID, otherwise a fresh v7 UUID.
func ParseOrGenerateTraceID(traceIdParam string) string {
	log := logrus.WithField("prefix", "ParseOrGenerateTraceID")
	if traceIdParam != "" {
		uuids, err := uuid.Parse(traceIdParam)
		if err == nil {
			return uuids.String()
		}
		log.WithFields(logrus.Fields{
			"error":            err,
			"invalid_trace_id": traceIdParam,
		}).Warn("generating a new trace_id")
	}
	uuids, err := uuid.NewV7()
	if err != nil {
		log.Error(err)
		return "unknown"
	}
	return uuids.String()
}
