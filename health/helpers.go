package health

import "time"

// New creates a status at the given level.
func New(component string, level Level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level.String(),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return New(component, LevelHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return New(component, LevelUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return New(component, LevelDegraded, message)
}

// Aggregate creates a status by aggregating sub-statuses. The aggregate takes
// the worst level among them; no sub-statuses is healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	worst := LevelHealthy
	for _, sub := range subStatuses {
		if l := sub.Level(); l > worst {
			worst = l
		}
	}

	var status Status
	switch worst {
	case LevelUnhealthy:
		status = NewUnhealthy(component, "One or more sub-components are unhealthy")
	case LevelDegraded:
		status = NewDegraded(component, "One or more sub-components are degraded")
	default:
		status = NewHealthy(component, "All sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)

	return status
}
