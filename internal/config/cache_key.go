package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerCompletedExamsKey returns the set of exam ids a learner has
// completed, as cached locally by this service.
func (r *CacheKeyStruct) LearnerCompletedExamsKey(learnerID string) string {
	return fmt.Sprintf("learner:%s:completed_exams", learnerID)
}

// SessionEventChannel returns the Redis PubSub channel for one learner's
// session of an exam.
func (r *CacheKeyStruct) SessionEventChannel(examID, learnerID string) string {
	return fmt.Sprintf("exam:%s:learner:%s:events", examID, learnerID)
}

// ExamPaperKey returns the cached exam paper as fetched from the platform.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

var CacheKey = NewCacheKeyStruct()
