package config

type WorkerKeyStruct struct {
	PersistAttemptStatsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptStatsQueue: "persist_attempt_stats_queue",
}
