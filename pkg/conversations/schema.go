package conversations

// SQL schema for the conversation store. DDL is idempotent; schema
// generations that predate the probe columns are backed up and
// recreated rather than migrated in place.

// probeColumns are the columns whose absence marks an obsolete schema
// generation of the conversations table.
var probeColumns = []string{
	"joint_action_items",
	"collaboration_opportunity",
	"collab_phase",
}

const createConversationsTable = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    contact_id TEXT,
    contact_name TEXT,
    token_id TEXT,
    direction TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    started_at DATETIME NOT NULL,
    last_message_at DATETIME NOT NULL,
    ended_at DATETIME,
    message_count INTEGER NOT NULL DEFAULT 0,

    collab_phase TEXT,
    collab_turn_count INTEGER NOT NULL DEFAULT 0,
    collab_overlap_score REAL NOT NULL DEFAULT 0,
    collab_active_threads TEXT,
    collab_candidates TEXT,
    collab_open_questions TEXT,
    collab_close_signal INTEGER NOT NULL DEFAULT 0,
    collab_confidence REAL NOT NULL DEFAULT 0,
    collab_updated_at DATETIME,

    summary TEXT,
    owner_summary TEXT,
    owner_relevance TEXT,
    owner_goals_touched TEXT,
    owner_action_items TEXT,
    caller_action_items TEXT,
    joint_action_items TEXT,
    collaboration_opportunity TEXT,
    owner_follow_up TEXT,
    owner_notes TEXT
);
`

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    direction TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    compressed INTEGER NOT NULL DEFAULT 0,
    metadata TEXT
);
`

const createIndexMessagesConversation = `
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
`

const createIndexConversationsLastMessage = `
CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC);
`

const createIndexConversationsStatus = `
CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
`

var schemaDDL = []string{
	createConversationsTable,
	createMessagesTable,
	createIndexMessagesConversation,
	createIndexConversationsLastMessage,
	createIndexConversationsStatus,
}
