package db

import (
	"database/sql"
	"errors"
	"time"
)

// Search request statuses
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// SearchRequest is one queued search submitted through the bot
type SearchRequest struct {
	ID           int
	UserID       int64
	ChatID       int64
	MessageID    int // "please wait" message, deleted once the search finishes
	Query        string
	Status       string
	ResultsCount int
	Error        sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EnsureUser registers the user or refreshes their profile and activity time
func (db *DB) EnsureUser(telegramID int64, name, username string) error {
	_, err := db.conn.Exec(`
		INSERT INTO users (telegram_id, name, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE
		SET name = EXCLUDED.name, username = EXCLUDED.username, last_activity = CURRENT_TIMESTAMP
	`, telegramID, name, username)
	return err
}

// RemainingRequests returns how many searches the user has left today.
// The stored counter is reset when the last request happened on an earlier
// UTC day.
func (db *DB) RemainingRequests(userID int64, maxPerDay int) (int, error) {
	var count int
	var last time.Time
	err := db.conn.QueryRow(`
		SELECT request_count, last_request_time
		FROM request_counters
		WHERE user_id = $1
	`, userID).Scan(&count, &last)

	if errors.Is(err, sql.ErrNoRows) {
		return maxPerDay, nil
	}
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if isStale(last, now) {
		if _, err := db.conn.Exec(`
			UPDATE request_counters
			SET request_count = 0
			WHERE user_id = $1
		`, userID); err != nil {
			return 0, err
		}
	}

	return remaining(count, last, now, maxPerDay), nil
}

// IncreaseCounter records one more search for the user today
func (db *DB) IncreaseCounter(userID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO request_counters (user_id, request_count, last_request_time)
		VALUES ($1, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE
		SET request_count = CASE
				WHEN (request_counters.last_request_time AT TIME ZONE 'UTC')::date < (CURRENT_TIMESTAMP AT TIME ZONE 'UTC')::date
				THEN 1
				ELSE request_counters.request_count + 1
			END,
			last_request_time = CURRENT_TIMESTAMP
	`, userID)
	return err
}

// CreateSearchRequest queues a new search
func (db *DB) CreateSearchRequest(userID, chatID int64, messageID int, query string) (*SearchRequest, error) {
	var req SearchRequest
	err := db.conn.QueryRow(`
		INSERT INTO search_requests (user_id, chat_id, message_id, query, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, chat_id, message_id, query, status, results_count, error, created_at, updated_at
	`, userID, chatID, messageID, query, StatusCreated).Scan(
		&req.ID, &req.UserID, &req.ChatID, &req.MessageID, &req.Query, &req.Status,
		&req.ResultsCount, &req.Error, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetNextCreatedRequest claims the oldest queued search and moves it to
// in_progress. Returns nil when the queue is empty.
func (db *DB) GetNextCreatedRequest() (*SearchRequest, error) {
	var req SearchRequest
	err := db.conn.QueryRow(`
		UPDATE search_requests
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id
			FROM search_requests
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, chat_id, message_id, query, status, results_count, error, created_at, updated_at
	`, StatusInProgress, StatusCreated).Scan(
		&req.ID, &req.UserID, &req.ChatID, &req.MessageID, &req.Query, &req.Status,
		&req.ResultsCount, &req.Error, &req.CreatedAt, &req.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// CompleteRequest marks a search as done with the number of posts sent
func (db *DB) CompleteRequest(requestID int, resultsCount int) error {
	_, err := db.conn.Exec(`
		UPDATE search_requests
		SET status = $1, results_count = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, StatusDone, resultsCount, requestID)
	return err
}

// FailRequest marks a search as failed and stores the reason
func (db *DB) FailRequest(requestID int, reason string) error {
	_, err := db.conn.Exec(`
		UPDATE search_requests
		SET status = $1, error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, StatusFailed, reason, requestID)
	return err
}

// RequeueInProgress puts searches interrupted by a restart back in the queue
func (db *DB) RequeueInProgress() (int64, error) {
	res, err := db.conn.Exec(`
		UPDATE search_requests
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE status = $2
	`, StatusCreated, StatusInProgress)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
