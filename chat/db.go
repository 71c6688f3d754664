package chat

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/iwanhae/chatroom/protocol"
)

// InMemoryDSN keeps the SQLite database inside the process.
const InMemoryDSN = ":memory:"

// SQLiteMessageStore stores messages in SQLite.
type SQLiteMessageStore struct {
	db *sql.DB
}

// NewSQLiteMessageStore opens the database at dataSourceName.
func NewSQLiteMessageStore(dataSourceName string) (*SQLiteMessageStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	return &SQLiteMessageStore{db: db}, nil
}

// Init creates the messages table.
func (s *SQLiteMessageStore) Init() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		username TEXT NOT NULL,
		filename TEXT,
		content TEXT NOT NULL
	);`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	log.Println("sqlite message table ready")
	return nil
}

// AppendMessage inserts one message.
func (s *SQLiteMessageStore) AppendMessage(msg protocol.Chat) error {
	var filename sql.NullString
	if msg.Filename != "" {
		filename = sql.NullString{String: msg.Filename, Valid: true}
	}
	insertSQL := `INSERT INTO messages(ts, username, filename, content) VALUES(?, ?, ?, ?)`
	if _, err := s.db.Exec(insertSQL, msg.Timestamp.UnixNano(), msg.Username, filename, msg.Content); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessages returns up to limit messages, skipping the newest offset ones,
// oldest first.
func (s *SQLiteMessageStore) GetMessages(offset, limit int) ([]protocol.Chat, error) {
	query := `SELECT ts, username, filename, content FROM messages ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []protocol.Chat
	for rows.Next() {
		var (
			msg      protocol.Chat
			ts       int64
			filename sql.NullString
		)
		if err := rows.Scan(&ts, &msg.Username, &filename, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts)
		if filename.Valid {
			msg.Filename = filename.String
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// fetched newest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessageCount returns the number of stored messages.
func (s *SQLiteMessageStore) GetMessageCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteMessageStore) Close() error {
	return s.db.Close()
}
