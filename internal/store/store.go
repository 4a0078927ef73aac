package store

// Store owns the three entity collections of the chat engine.
//
// Messages reference conversations and corrections reference learner
// messages; both references are checked when a child record is created.
type Store struct {
	Conversations *Collection[Conversation]
	Messages      *Collection[Message]
	Corrections   *Collection[Correction]
}

// Option configures a [Store].
type Option func(*options)

type options struct {
	latency Latency
	fault   FaultFunc
}

// WithLatency makes every operation wait for the delay configured for it.
// Use [SimulatedLatency] to reproduce the original backend timings.
func WithLatency(l Latency) Option {
	return func(o *options) { o.latency = l }
}

// WithFaults installs a fault injector consulted before every operation.
func WithFaults(f FaultFunc) Option {
	return func(o *options) { o.fault = f }
}

// New returns an empty [Store]. Without options, operations complete
// immediately and never fail.
func New(opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	convs := newCollection(schema[Conversation]{
		name:  "conversations",
		id:    func(c Conversation) int { return c.ID },
		setID: func(c *Conversation, id int) { c.ID = id },
	}, o.latency, o.fault)

	msgs := newCollection(schema[Message]{
		name:   "messages",
		id:     func(m Message) int { return m.ID },
		setID:  func(m *Message, id int) { m.ID = id },
		parent: func(m Message) int { return m.ConversationID },
	}, o.latency, o.fault)
	msgs.exists = convs.has

	corrs := newCollection(schema[Correction]{
		name:   "corrections",
		id:     func(c Correction) int { return c.ID },
		setID:  func(c *Correction, id int) { c.ID = id },
		parent: func(c Correction) int { return c.MessageID },
	}, o.latency, o.fault)
	corrs.exists = func(id int) bool {
		m, ok := msgs.peek(id)
		return ok && m.Sender == SenderUser
	}

	return &Store{
		Conversations: convs,
		Messages:      msgs,
		Corrections:   corrs,
	}
}
