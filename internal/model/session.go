package model

// SessionState enumerates the lifecycle states of an exam session.
type SessionState string

const (
	SessionStateWelcome SessionState = "welcome"
	SessionStateExam    SessionState = "exam"
	SessionStateResults SessionState = "results"
)

// EntryAction is what the welcome screen offers, as decided by the retake policy.
type EntryAction string

const (
	EntryActionStart   EntryAction = "start"
	EntryActionRetake  EntryAction = "retake"
	EntryActionBlocked EntryAction = "blocked"
)

// LoadStatus is the discriminated outcome of loading a session.
type LoadStatus string

const (
	LoadStatusReady   LoadStatus = "ready"
	LoadStatusBlocked LoadStatus = "blocked"
	LoadStatusError   LoadStatus = "error"
)

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ExamID           string       `json:"exam_id"`
	LearnerID        string       `json:"learner_id"`
	State            SessionState `json:"state"`
	Entry            EntryAction  `json:"entry"`
	Exam             *Exam        `json:"exam,omitempty"`
	QuestionIndex    int          `json:"question_index"`
	QuestionCount    int          `json:"question_count"`
	Question         *Question    `json:"question,omitempty"`
	CurrentAnswer    *Answer      `json:"current_answer,omitempty"`
	AnsweredCount    int          `json:"answered_count"`
	RemainingSeconds int          `json:"remaining_seconds"`
	Submitting       bool         `json:"submitting"`
	Result           *GradeResult `json:"result,omitempty"`
	Passed           bool         `json:"passed"`
	Certificate      *Certificate `json:"certificate,omitempty"`
	RetakeAvailable  bool         `json:"retake_available"`
	Notices          []Notice     `json:"notices,omitempty"`
}

// NoticeKind classifies user-facing notices so the client can tell a
// harmless warning from a failed submission.
type NoticeKind string

const (
	NoticeUploadFailed      NoticeKind = "upload_failed"
	NoticeSubmissionFailed  NoticeKind = "submission_failed"
	NoticeCertificateFailed NoticeKind = "certificate_failed"
	NoticeAttemptExpired    NoticeKind = "attempt_expired"
	NoticeAlreadyCompleted  NoticeKind = "already_completed"
	NoticeRetakeFailed      NoticeKind = "retake_failed"
)

// Notice is a pending message for the learner.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	QuestionID string     `json:"question_id,omitempty"`
	Message    string     `json:"message,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// LoadResult is returned when a session is opened.
type LoadResult struct {
	Status   LoadStatus       `json:"status"`
	Entry    EntryAction      `json:"entry"`
	Prior    *GradeResult     `json:"prior,omitempty"`
	Snapshot *SessionSnapshot `json:"snapshot,omitempty"`
}

// OpenSessionRequest is the payload for loading a session.
type OpenSessionRequest struct {
	IssueCertificate *bool `json:"issue_certificate"`
}

// AnswerRequest is the payload for answering a question.
type AnswerRequest struct {
	Value string `json:"value" binding:"max=20000"`
}

// ExamCompletion is one row of the completion overview.
type ExamCompletion struct {
	ExamID    string       `json:"exam_id"`
	Completed bool         `json:"completed"`
	Source    string       `json:"source,omitempty"`
	Grade     *GradeResult `json:"grade,omitempty"`
}
