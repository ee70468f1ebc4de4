package core

// decodingState pairs a decoder instance with its accumulating buffer. It is
// created on the serial context when a decoder is first selected; after
// that the buffer is appended to and the decoder invoked only on the
// decoding context.
type decodingState struct {
	decoder     Decoder
	buffer      []byte
	progressive bool
}

// session is the shared loading state for one deduplication key. Every
// field here is read/written only on the orchestrator's serial context.
type session struct {
	id      string
	key     LoadKey // the sessions-table key: a fresh uuid when deduplication is disabled
	request Request // originating request: decoder/cache/processor selection

	tasks map[string]*task // subscriber set, keyed by task id

	tokenSource *TokenSource

	fetchHandle FetchHandle
	fetchOp     *Op

	downloadedDataCount  int64
	expectedContentLen   int64

	decoding *decodingState

	partialOp *Op

	completed bool

	metrics Metrics
}

func newSession(id string, key LoadKey, req Request) *session {
	return &session{
		id:                 id,
		key:                key,
		request:            req,
		tasks:              make(map[string]*task),
		tokenSource:        NewTokenSource(),
		expectedContentLen: -1,
		metrics:            Metrics{SessionID: id},
	}
}

// priority is the Session's derived priority: the max across all current
// subscribers, or Normal when the subscriber set is empty.
func (s *session) priority() Priority {
	if len(s.tasks) == 0 {
		return PriorityNormal
	}
	p := PriorityVeryLow
	for _, t := range s.tasks {
		p = maxPriority(p, t.request.Priority)
	}
	return p
}

func (s *session) token() *CancelToken {
	return s.tokenSource.Token()
}
