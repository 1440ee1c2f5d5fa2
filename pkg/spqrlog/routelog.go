package spqrlog

import "time"

var RLogger = NewRouteLogger(-1)

// RouteLogger reports routing decisions slower than a threshold.
type RouteLogger struct {
	logMinDurationRoute time.Duration
}

func NewRouteLogger(logMinDurationRoute time.Duration) *RouteLogger {
	return &RouteLogger{
		logMinDurationRoute: logMinDurationRoute,
	}
}

func ReloadRLogger(logMinDurationRoute time.Duration) {
	RLogger = NewRouteLogger(logMinDurationRoute)
}

func (s *RouteLogger) shouldLogRoute(t time.Duration) bool {
	return s.logMinDurationRoute != -1 && t > s.logMinDurationRoute
}

func (s *RouteLogger) ReportRoute(strategy string, stmt string, t time.Duration) {
	if s.shouldLogRoute(t) {
		Zero.Info().Str("stmt", stmt).Str("strategy", strategy).Dur("duration", t).Msg("slow route")
	}
}
