package store

// ConversationRecord is one appended snapshot of a conversation state.
// Composite fields are opaque serialized strings; the driver stores them
// byte-for-byte.
type ConversationRecord struct {
	ID        int64
	UID       string
	UserID    string
	UserName  string
	Version   string
	Intent    string
	Entities  string
	Slots     string
	Events    string
	Button    *string
	Synonyms  *string
	Response  *string
	LoopStack int
	CreatedTs int64
}

// FindConversationRecord filters record queries. Records are always returned
// newest first.
type FindConversationRecord struct {
	UserID *string
	Limit  *int
}
