package entities

// GreetingText opens a session that has no prior history. The greeting is
// local-only: never persisted and never forwarded to the reply generator.
const GreetingText = "Hi! I'm your travel concierge. Ask me anything about planning your trip."

// ChatSession holds the per-identity transcript state of the chat widget.
// It is a plain state holder; orchestration and locking live in usecase.
type ChatSession struct {
	Identity Identity
	IsOpen   bool

	turns       []Turn
	hasGreeting bool // turns[0] is the synthetic greeting
}

// NewChatSession creates an empty, closed session for the given identity.
func NewChatSession(identity Identity) *ChatSession {
	return &ChatSession{Identity: identity}
}

// Open marks the widget visible, seeding the synthetic greeting when the
// transcript is empty. Reopening a non-empty session never re-adds it.
func (s *ChatSession) Open() {
	s.IsOpen = true
	if len(s.turns) == 0 {
		s.turns = append(s.turns, NewTurn(SpeakerOther, GreetingText, OriginGenerated))
		s.hasGreeting = true
	}
}

// Close hides the widget. The transcript is untouched.
func (s *ChatSession) Close() {
	s.IsOpen = false
}

// Append adds a turn to the end of the transcript.
func (s *ChatSession) Append(turn Turn) {
	s.turns = append(s.turns, turn)
}

// Replace swaps the whole transcript for a persisted snapshot. The store is
// the source of truth; local-only turns, the greeting included, are not
// merged back in.
func (s *ChatSession) Replace(turns []Turn) {
	s.turns = make([]Turn, len(turns))
	copy(s.turns, turns)
	s.hasGreeting = false
}

// Turns returns a copy of the transcript in chronological order.
func (s *ChatSession) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns in the transcript.
func (s *ChatSession) Len() int {
	return len(s.turns)
}

// HasGreeting reports whether the first turn is the synthetic greeting.
func (s *ChatSession) HasGreeting() bool {
	return s.hasGreeting
}
