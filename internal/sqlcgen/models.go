package sqlcgen

import "time"

type DeviationSighting struct {
	DeviationID      string
	CountyNo         int32
	MessageTypeValue string
	Category         string
	Header           *string
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	SeenCount        int64
}

type DeviationStat struct {
	CountyNo   int32
	Category   string
	Deviations int64
	LastSeenAt time.Time
}

type PollRun struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	CountiesPolled int32
	CountiesFailed int32
	DeviationsSeen int32
}
