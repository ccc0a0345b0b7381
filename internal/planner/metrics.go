package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/driftdb/driftdb/internal/build"
)

var (
	preparedPlansCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "planner_prepared_plans_total",
		Help:      "The total number of prepared plans, by scan shape.",
	}, []string{"shape"})

	invalidatedCursorsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "planner_invalidated_cursors_total",
		Help:      "The total number of cursors invalidated by collection drops.",
	})

	cursorDocumentsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "planner_cursor_documents_total",
		Help:      "The total number of documents surfaced by cursor stages.",
	})

	cursorDedupSkipsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "planner_cursor_dedup_skips_total",
		Help:      "The total number of scan positions skipped because the record was already returned.",
	})
)
